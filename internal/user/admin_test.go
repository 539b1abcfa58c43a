package user

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user/entity"
)

func TestPromoteAndDemote(t *testing.T) {
	h := newHarness(t)
	u := h.register(t)
	ctx := context.Background()

	got, err := h.svc.Promote(ctx, u.ID, true)
	require.NoError(t, err)
	require.Equal(t, entity.RoleAdmin, got.Role)

	_, err = h.svc.Promote(ctx, u.ID, false)
	require.NoError(t, err)
	require.Equal(t, entity.RoleUser, h.store.get(u.ID).Role)
}

func TestSuperadminRoleIsFixed(t *testing.T) {
	h := newHarness(t)
	u := h.register(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetRole(ctx, u.ID, entity.RoleSuperAdmin))

	_, err := h.svc.Promote(ctx, u.ID, false)
	require.EqualError(t, err, "A superadmin's role cannot be changed.")
	require.Equal(t, entity.RoleSuperAdmin, h.store.get(u.ID).Role)
}

func TestUpdateUserValidatesAndChecksDuplicates(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t)
	in := validRegistration()
	in.Username, in.Email = "bob", "bob@example.com"
	bob, err := h.svc.Register(context.Background(), in)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = h.svc.UpdateUser(ctx, bob.ID, AdminPatch{Email: ptr("alice@example.com")})
	require.EqualError(t, err, msgDuplicate)

	_, err = h.svc.UpdateUser(ctx, bob.ID, AdminPatch{AccountStatus: ptr("frozen")})
	var v *apperror.Validation
	require.ErrorAs(t, err, &v)
	require.Equal(t, "Invalid status.", v.Fields["accountStatus"])

	got, err := h.svc.UpdateUser(ctx, alice.ID, AdminPatch{
		MembershipType: ptr(entity.MembershipPatron),
		FamilyMembers:  FamilyInput{Set: true, Members: entity.FamilyMembers{{FullName: " Carol ", Relationship: "daughter"}}},
	})
	require.NoError(t, err)
	require.Equal(t, entity.MembershipPatron, got.MembershipType)
	stored := h.store.get(alice.ID)
	require.Equal(t, "Carol", stored.FamilyMembers[0].FullName)
}

func TestDeleteUserArchives(t *testing.T) {
	h := newHarness(t)
	u := h.register(t)
	ctx := context.Background()

	_, err := h.svc.DeleteUser(ctx, u.ID, u.ID, "")
	require.EqualError(t, err, "You cannot delete your own account.")

	_, err = h.svc.DeleteUser(ctx, u.ID, 77, " moved away ")
	require.NoError(t, err)
	require.Nil(t, h.store.get(u.ID))
	require.Len(t, h.store.archived, 1)
	a := h.store.archived[0]
	require.Equal(t, u.ID, a.OriginalUserID)
	require.Equal(t, int64(77), a.DeletedBy)
	require.Equal(t, "moved away", a.Reason)
	require.Equal(t, "alice@example.com", a.Email)

	_, err = h.svc.DeleteUser(ctx, u.ID, 77, "")
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDeleteReceipt(t *testing.T) {
	h := newHarness(t)
	u := h.register(t)
	h.submitReceipt(t, u.ID)
	_, err := h.svc.VerifyUser(context.Background(), VerifyInput{UserID: u.ID, NewStatus: entity.StatusActive})
	require.NoError(t, err)
	rid := h.store.get(u.ID).Receipts[0].ID

	require.NoError(t, h.svc.DeleteReceipt(context.Background(), u.ID, rid))
	require.Empty(t, h.store.get(u.ID).Receipts)
	require.ErrorIs(t, h.svc.DeleteReceipt(context.Background(), u.ID, rid), apperror.ErrNotFound)
}

func TestSendIDCard(t *testing.T) {
	h := newHarness(t)
	png := []byte{0x89, 'P', 'N', 'G'}
	image := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	require.NoError(t, h.svc.SendIDCard(context.Background(), image, "Alice Example", "alice@example.com"))
	msg, ok := h.mail.Last()
	require.True(t, ok)
	require.Len(t, msg.Attachments, 1)
	require.Equal(t, png, msg.Attachments[0].Data)

	require.EqualError(t, h.svc.SendIDCard(context.Background(), "", "x", "a@b.co"), "Missing data")
	require.Error(t, h.svc.SendIDCard(context.Background(), "!!notbase64", "x", "a@b.co"))
}

func TestDonorCreditAndDebit(t *testing.T) {
	h := newHarness(t)
	u := h.register(t)
	ctx := context.Background()

	require.NoError(t, h.svc.CreditDonation(ctx, u.ID, 5000, "pi_1", "hall"))
	require.NoError(t, h.svc.DebitDonation(ctx, u.ID, 2000))
	stored := h.store.get(u.ID)
	require.EqualValues(t, 3000, stored.DonatedAmount)
	require.Len(t, stored.Receipts, 1)
	require.Equal(t, "Stripe_pi_1", stored.Receipts[0].FileName)
	require.Equal(t, "/receipts/pi_1.pdf", stored.Receipts[0].FilePath)
	require.Nil(t, stored.Receipts[0].ReceiptNumber)

	d, err := h.svc.LookupDonor(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", d.Email)
}

func TestEnsureSuperAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, created, err := h.svc.EnsureSuperAdmin(ctx, "root", "Root@Example.com", "changeme")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, entity.RoleSuperAdmin, u.Role)
	require.Equal(t, entity.StatusActive, u.AccountStatus)
	_, err = login(h, "root", "changeme")
	require.NoError(t, err)

	// running it again is a no-op
	again, created, err := h.svc.EnsureSuperAdmin(ctx, "root", "root@example.com", "changeme")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, u.ID, again.ID)

	// an existing member is raised in place
	member := h.register(t)
	raised, created, err := h.svc.EnsureSuperAdmin(ctx, "alice", "alice@example.com", "whatever")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, member.ID, raised.ID)
	require.Equal(t, entity.RoleSuperAdmin, h.store.get(member.ID).Role)

	_, _, err = h.svc.EnsureSuperAdmin(ctx, "x", "bad", "changeme")
	require.Error(t, err)
}
