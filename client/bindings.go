package client

import (
	"context"

	"github.com/example/realtime-chatroom/client/reconcile"
	"github.com/example/realtime-chatroom/client/subscribe"
	"github.com/example/realtime-chatroom/events"
)

type binder func(h *subscribe.Handle)

func roomBinders(r *reconcile.Reconciler) map[events.Family]binder {
	return map[events.Family]binder{
		events.FamilyNewMessage: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyNewMessage, r.MessageCreated)
		},
		events.FamilyDeleteMessage: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyDeleteMessage, r.MessageDeleted)
		},
		events.FamilyNewMember: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyNewMember, r.MemberJoined)
		},
		events.FamilyRemoveMember: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyRemoveMember, r.MemberRemoved)
		},
		events.FamilyMemberLeave: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyMemberLeave, r.MemberLeft)
		},
		events.FamilyDeleteRoom: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyDeleteRoom, r.RoomDeleted)
		},
		events.FamilyNewInvite: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyNewInvite, r.RoomInviteCreated)
		},
		events.FamilyDeclineInvite: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyDeclineInvite, r.InviteDeclined)
		},
	}
}

func userBinders(r *reconcile.Reconciler) map[events.Family]binder {
	return map[events.Family]binder{
		events.FamilyChatInvite: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyChatInvite, r.InviteReceived)
		},
		events.FamilyRevokeInvite: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyRevokeInvite, r.InviteRevoked)
		},
		events.FamilyBan: func(h *subscribe.Handle) {
			subscribe.BindTyped(h, events.FamilyBan, r.Banned)
		},
	}
}

// bindScope subscribes scope to every family of scopeID and binds the
// reconciler handler of each.
func bindScope(ctx context.Context, scope *subscribe.Scope, scopeID string, families []events.Family, binders map[events.Family]binder) error {
	for _, family := range families {
		topic, err := events.TopicFor(scopeID, family)
		if err != nil {
			return err
		}
		h, err := scope.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		binders[family](h)
	}
	return nil
}
