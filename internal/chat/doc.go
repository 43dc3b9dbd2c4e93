// Package chat is the repository layer of gophchat: it owns the entity
// invariants (one direct chat per pair, active-membership gating, attachment
// quotas, stable message order), derives the conversation list, and
// announces every committed change on the sync bus.
//
// A Repository depends only on storage.Backend. Each execution context (a
// CLI session, a test "tab") builds its own Repository; contexts in one
// process share the same *syncbus.Bus and preferences store.
//
// Typical usage
//
//	repo, _ := chat.New(backend, prefs, bus, cryptox.NewPBKDF2(40), chat.Quota{MaxFileBytes: 10 << 20, MaxTotalBytes: 50 << 20})
//	alex, _ := repo.CreateProfile(ctx, "Alex")
//	sam, _ := repo.CreateProfile(ctx, "Sam")
//	dm, _ := repo.CreateDirect(ctx, alex.ID, sam.ID)
//	_, _ = repo.SendMessage(ctx, dm.ID, alex.ID, "hi", nil)
//	list, _ := repo.GetVisibleChats(ctx, sam.ID)
//
// Every failure is a *common.Error; match its kind with errors.Is against
// common.ErrValidation, common.ErrAuth, common.ErrNotFound or
// common.ErrBackend.
package chat
