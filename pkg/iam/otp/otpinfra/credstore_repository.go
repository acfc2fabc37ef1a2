package otpinfra

import (
	"context"

	"github.com/Abraxas-365/gatekeeper/pkg/credstore"
	"github.com/Abraxas-365/gatekeeper/pkg/iam/otp"
	"github.com/Abraxas-365/gatekeeper/pkg/kernel"
)

// CredstoreSecretRepository keeps TOTP secrets in the credential store
// without expiry.
type CredstoreSecretRepository struct {
	store credstore.Store
}

func NewCredstoreSecretRepository(store credstore.Store) *CredstoreSecretRepository {
	return &CredstoreSecretRepository{store: store}
}

var _ otp.SecretRepository = (*CredstoreSecretRepository)(nil)

func secretKey(id kernel.UserID) string { return "twofactor:" + id.String() }

func (r *CredstoreSecretRepository) Save(ctx context.Context, userID kernel.UserID, secret string) error {
	return r.store.Set(ctx, secretKey(userID), secret, 0)
}

func (r *CredstoreSecretRepository) Get(ctx context.Context, userID kernel.UserID) (string, bool, error) {
	return r.store.Get(ctx, secretKey(userID))
}

func (r *CredstoreSecretRepository) Delete(ctx context.Context, userID kernel.UserID) error {
	return r.store.Delete(ctx, secretKey(userID))
}
