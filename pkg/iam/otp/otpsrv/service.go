package otpsrv

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/iam/otp"
	"github.com/Abraxas-365/gatekeeper/pkg/logx"
	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const qrSize = 200

// TwoFactorService stages TOTP secrets and verifies codes against them.
type TwoFactorService struct {
	secrets otp.SecretRepository
	issuer  string
	now     func() time.Time
}

// Option configures a TwoFactorService.
type Option func(*TwoFactorService)

// WithClock replaces the wall clock used to compute the current period.
func WithClock(now func() time.Time) Option {
	return func(s *TwoFactorService) { s.now = now }
}

func NewTwoFactorService(secrets otp.SecretRepository, issuer string, opts ...Option) *TwoFactorService {
	s := &TwoFactorService{secrets: secrets, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(otp.Period / time.Second),
		Skew:      otp.Skew,
		Digits:    pqotp.DigitsSix,
		Algorithm: pqotp.AlgorithmSHA1,
	}
}

// BeginEnrollment stages a fresh secret for id and returns its provisioning
// URI. It refuses when two-factor is already enabled and a secret is staged.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context, id otp.Identity) (*otp.Enrollment, error) {
	if id.Enabled {
		_, staged, err := s.secrets.Get(ctx, id.UserID)
		if err != nil {
			return nil, err
		}
		if staged {
			return nil, otp.ErrAlreadyEnrolled()
		}
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: id.AccountName,
		Period:      uint(otp.Period / time.Second),
		Digits:      pqotp.DigitsSix,
		Algorithm:   pqotp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, otp.ErrKeyGeneration(err)
	}

	if err := s.secrets.Save(ctx, id.UserID, key.Secret()); err != nil {
		return nil, err
	}

	enrollment := &otp.Enrollment{ProvisioningURI: key.URL()}
	if qr, err := qrDataURL(key); err != nil {
		logx.WithContext(ctx).WithError(err).Warn("failed to render two-factor QR code")
	} else {
		enrollment.QRCode = qr
	}

	logx.WithContext(ctx).WithField("user_id", id.UserID).Info("two-factor secret staged")
	return enrollment, nil
}

// VerifyEnrollment checks code against the staged secret. On success the
// caller sets the durable enabled flag.
func (s *TwoFactorService) VerifyEnrollment(ctx context.Context, id otp.Identity, code string) error {
	return s.verify(ctx, id, code)
}

// VerifyLogin is the login-time check. It passes when two-factor is off,
// requires a code when it is on, and validates that code.
func (s *TwoFactorService) VerifyLogin(ctx context.Context, id otp.Identity, code string) error {
	if !id.Enabled {
		return nil
	}
	if code == "" {
		return otp.ErrTwoFactorRequired()
	}
	return s.verify(ctx, id, code)
}

// Disable discards the secret once two-factor is turned off.
func (s *TwoFactorService) Disable(ctx context.Context, id otp.Identity) error {
	return s.secrets.Delete(ctx, id.UserID)
}

func (s *TwoFactorService) verify(ctx context.Context, id otp.Identity, code string) error {
	secret, ok, err := s.secrets.Get(ctx, id.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return otp.ErrInvalidCode()
	}

	valid, err := totp.ValidateCustom(code, secret, s.now().UTC(), validateOpts())
	if err != nil || !valid {
		return otp.ErrInvalidCode()
	}
	return nil
}

func qrDataURL(key *pqotp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
