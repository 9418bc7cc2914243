// Package service holds account, login and jam session business logic.
//
// AuthService sits between the HTTP handlers and the stores:
//
//	UserHandler (HTTP) → AuthService → IdentityProvider (password, Google, Facebook)
//	                                 ↘ Reconciler → AccountRepository (DB)
//	                                 ↘ TokenService (JWT)
//	                                 ↘ AvatarStore (uploads)
//
// Every login flow has the same shape: the provider verifies the client's
// credentials and returns a VerifiedIdentity, the Reconciler maps it to one
// local account, and the TokenService issues an access/refresh pair. Adding
// a provider means writing one IdentityProvider, nothing here changes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/auth"
	"github.com/sakif/jamspace/internal/model"
	"github.com/sakif/jamspace/internal/repository"
	"github.com/sakif/jamspace/internal/storage"
	"github.com/sakif/jamspace/internal/telemetry"
)

const (
	MaxProfileFieldLength = 255
	MaxBioLength          = 2000
	MaxAvatarURLLength    = 2048
)

// usernamePattern allows letters, digits and . @ + - _ in any script.
var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}.@+\-_]+$`)

// AuthService handles registration, login, token refresh and the profile of
// the signed-in account.
type AuthService struct {
	accounts   repository.AccountRepository
	reconciler *Reconciler
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	avatars    storage.AvatarStore
	providers  map[string]auth.IdentityProvider
	logger     *slog.Logger
}

// NewAuthService wires the service. Each provider is reachable by its Name()
// through Login.
func NewAuthService(
	accounts repository.AccountRepository,
	reconciler *Reconciler,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	avatars storage.AvatarStore,
	logger *slog.Logger,
	providers ...auth.IdentityProvider,
) *AuthService {
	byName := make(map[string]auth.IdentityProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthService{
		accounts:   accounts,
		reconciler: reconciler,
		tokens:     tokens,
		passwords:  passwords,
		avatars:    avatars,
		providers:  byName,
		logger:     logger,
	}
}

// RegisterInput is the body of a password registration.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	Password2   string // optional confirmation; checked only when non-empty
	Instruments string
	Genres      string
	SkillLevel  string
	Bio         string
	Location    string
}

// Register creates a password account and its profile.
// Duplicate username or email comes back as apperror.Conflict on that field.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	account := &model.Account{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	}
	profile := &model.Profile{
		Instruments: strings.TrimSpace(in.Instruments),
		Genres:      strings.TrimSpace(in.Genres),
		SkillLevel:  in.SkillLevel,
		Bio:         strings.TrimSpace(in.Bio),
		Location:    strings.TrimSpace(in.Location),
	}
	if err := s.accounts.CreateWithProfile(ctx, account, profile); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: registering %q: %w", in.Username, err)
	}

	telemetry.RecordAccountCreated(auth.ProviderPassword)
	s.logger.Info("account registered",
		slog.String("accountID", account.ID),
		slog.String("username", account.Username),
	)
	return s.view(account, profile), nil
}

func validateRegistration(in RegisterInput) error {
	switch {
	case in.Username == "":
		return apperror.ValidationFailed("username", "This field is required.")
	case len([]rune(in.Username)) > MaxUsernameLength:
		return apperror.ValidationFailed("username",
			fmt.Sprintf("Ensure this field has no more than %d characters.", MaxUsernameLength))
	case !usernamePattern.MatchString(in.Username):
		return apperror.ValidationFailed("username",
			"Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}

	local, domain, ok := strings.Cut(in.Email, "@")
	switch {
	case in.Email == "":
		return apperror.ValidationFailed("email", "This field is required.")
	case !ok || local == "" || domain == "" || strings.ContainsAny(in.Email, " \t\r\n"):
		return apperror.ValidationFailed("email", "Enter a valid email address.")
	case strings.HasSuffix(strings.ToLower(in.Email), "@"+auth.FacebookPlaceholderDomain):
		return apperror.ValidationFailed("email", "This email domain is reserved.")
	}

	if in.Password == "" {
		return apperror.ValidationFailed("password", "This field is required.")
	}
	switch err := auth.CheckStrength(in.Password); {
	case errors.Is(err, auth.ErrPasswordTooShort):
		return apperror.ValidationFailed("password",
			fmt.Sprintf("Ensure this field has at least %d characters.", auth.MinPasswordLength))
	case errors.Is(err, auth.ErrPasswordTooLong):
		return apperror.ValidationFailed("password",
			fmt.Sprintf("Ensure this field has no more than %d bytes.", auth.MaxPasswordBytes))
	}
	if in.Password2 != "" && in.Password2 != in.Password {
		return apperror.ValidationFailed("password2", "Password fields didn't match.")
	}

	if in.SkillLevel != "" && !model.ValidSkillLevel(in.SkillLevel) {
		return apperror.ValidationFailed("skill_level", fmt.Sprintf("%q is not a valid choice.", in.SkillLevel))
	}
	return checkProfileLengths(in.Instruments, in.Genres, in.Location, in.Bio)
}

func checkProfileLengths(instruments, genres, location, bio string) error {
	for field, v := range map[string]string{
		"instruments": instruments,
		"genres":      genres,
		"location":    location,
	} {
		if len([]rune(v)) > MaxProfileFieldLength {
			return apperror.ValidationFailed(field,
				fmt.Sprintf("Ensure this field has no more than %d characters.", MaxProfileFieldLength))
		}
	}
	if len([]rune(bio)) > MaxBioLength {
		return apperror.ValidationFailed("bio",
			fmt.Sprintf("Ensure this field has no more than %d characters.", MaxBioLength))
	}
	return nil
}

// Login authenticates through the named provider and returns a token pair.
// Provider failures are returned unchanged so their messages reach the client.
func (s *AuthService) Login(ctx context.Context, provider string, creds auth.Credentials) (*auth.TokenPair, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("service/auth: provider %q is not configured", provider)
	}

	pair, err := s.login(ctx, p, creds)
	telemetry.RecordLogin(provider, err)
	return pair, err
}

func (s *AuthService) login(ctx context.Context, p auth.IdentityProvider, creds auth.Credentials) (*auth.TokenPair, error) {
	identity, err := p.Resolve(ctx, creds)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthenticated) {
			s.logger.Info("login rejected",
				slog.String("provider", p.Name()),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	account, created, err := s.reconciler.Reconcile(ctx, identity)
	if err != nil {
		return nil, err
	}
	if created {
		telemetry.RecordAccountCreated(p.Name())
	}

	pair, err := s.tokens.IssuePair(account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing tokens for %s: %w", account.ID, err)
	}

	s.logger.Info("login succeeded",
		slog.String("accountID", account.ID),
		slog.String("provider", p.Name()),
		slog.Bool("created", created),
	)
	return pair, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperror.ValidationFailed("refresh", "This field is required.")
	}
	access, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		s.logger.Debug("refresh rejected", slog.String("error", err.Error()))
		return "", apperror.Unauthenticated("Token is invalid or expired")
	}
	return access, nil
}

// Me returns the account with its profile and resolved avatar.
func (s *AuthService) Me(ctx context.Context, accountID string) (*model.User, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	profile, err := s.accounts.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.view(account, profile), nil
}

// ProfilePatch is a partial update: nil fields are left unchanged.
type ProfilePatch struct {
	Instruments     *string
	Genres          *string
	SkillLevel      *string
	Bio             *string
	Location        *string
	AvatarURL       *string
	InstagramHandle *string
	TikTokHandle    *string
}

// AvatarUpload is an uploaded image, already read into memory by the
// handler. Only the bytes matter: the type is sniffed from them.
type AvatarUpload struct {
	Data []byte
}

// UpdateProfile applies patch and, when avatar is non-nil, stores the upload
// as the account's avatar. An uploaded avatar always wins over avatar_url.
func (s *AuthService) UpdateProfile(ctx context.Context, accountID string, patch ProfilePatch, avatar *AvatarUpload) (*model.User, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	profile, err := s.accounts.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if err := applyPatch(profile, patch); err != nil {
		return nil, err
	}

	oldKey := profile.AvatarKey
	var newKey string
	if avatar != nil {
		contentType, err := storage.DetectImage(avatar.Data)
		if err != nil {
			return nil, avatarError(err)
		}
		newKey = storage.NewAvatarKey(contentType)
		if err := s.avatars.Put(ctx, newKey, avatar.Data, contentType); err != nil {
			return nil, fmt.Errorf("service/auth: storing avatar for %s: %w", accountID, err)
		}
		profile.AvatarKey = newKey
	}

	if err := s.accounts.UpdateProfile(ctx, profile); err != nil {
		if newKey != "" {
			s.removeAvatar(ctx, accountID, newKey)
		}
		return nil, fmt.Errorf("service/auth: updating profile %s: %w", accountID, err)
	}
	if newKey != "" && oldKey != "" {
		s.removeAvatar(ctx, accountID, oldKey)
	}

	s.logger.Info("profile updated",
		slog.String("accountID", accountID),
		slog.Bool("avatarUploaded", newKey != ""),
	)
	return s.view(account, profile), nil
}

func applyPatch(p *model.Profile, patch ProfilePatch) error {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&p.Instruments, patch.Instruments)
	set(&p.Genres, patch.Genres)
	set(&p.SkillLevel, patch.SkillLevel)
	set(&p.Bio, patch.Bio)
	set(&p.Location, patch.Location)
	set(&p.AvatarURL, patch.AvatarURL)
	set(&p.InstagramHandle, patch.InstagramHandle)
	set(&p.TikTokHandle, patch.TikTokHandle)

	if p.SkillLevel != "" && !model.ValidSkillLevel(p.SkillLevel) {
		return apperror.ValidationFailed("skill_level", fmt.Sprintf("%q is not a valid choice.", p.SkillLevel))
	}
	if err := checkProfileLengths(p.Instruments, p.Genres, p.Location, p.Bio); err != nil {
		return err
	}
	if u := p.AvatarURL; u != "" {
		if len(u) > MaxAvatarURLLength || !(strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://")) {
			return apperror.ValidationFailed("avatar_url", "Enter a valid URL.")
		}
	}
	for field, v := range map[string]string{
		"instagram_handle": p.InstagramHandle,
		"tiktok_handle":    p.TikTokHandle,
	} {
		if len([]rune(v)) > MaxProfileFieldLength {
			return apperror.ValidationFailed(field,
				fmt.Sprintf("Ensure this field has no more than %d characters.", MaxProfileFieldLength))
		}
	}
	return nil
}

func avatarError(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return apperror.ValidationFailed("avatar", "Avatar must be 5 MB or smaller.")
	case errors.Is(err, storage.ErrEmptyFile):
		return apperror.ValidationFailed("avatar", "The submitted file is empty.")
	default:
		return apperror.ValidationFailed("avatar",
			"Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}
}

func (s *AuthService) removeAvatar(ctx context.Context, accountID, key string) {
	if err := s.avatars.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete avatar",
			slog.String("accountID", accountID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// view resolves the avatar: uploaded file, then external URL, then none.
func (s *AuthService) view(a *model.Account, p *model.Profile) *model.User {
	var avatar *string
	switch {
	case p.HasUploadedAvatar():
		u := s.avatars.URL(p.AvatarKey)
		avatar = &u
	case p.AvatarURL != "":
		u := p.AvatarURL
		avatar = &u
	}
	return &model.User{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Avatar:    avatar,
		Profile:   p,
	}
}
