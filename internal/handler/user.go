package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/auth"
	"github.com/sakif/jamspace/internal/service"
	"github.com/sakif/jamspace/internal/storage"
)

// multipartSlack is room for the non-file form fields next to an avatar.
const multipartSlack = 1 << 20

// UserHandler serves /api/users: registration, every login flow, token
// refresh and the signed-in account's profile.
type UserHandler struct {
	users  *service.AuthService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler backed by the auth service.
func NewUserHandler(users *service.AuthService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Password2   string `json:"password2"`
	Instruments string `json:"instruments"`
	Genres      string `json:"genres"`
	SkillLevel  string `json:"skill_level"`
	Bio         string `json:"bio"`
	Location    string `json:"location"`
}

// HandleRegister handles POST /api/users/register.
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Register(r.Context(), service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		Password2:   req.Password2,
		Instruments: req.Instruments,
		Genres:      req.Genres,
		SkillLevel:  req.SkillLevel,
		Bio:         req.Bio,
		Location:    req.Location,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	AccessToken  string `json:"access_token"`
	Code         string `json:"code"`
	CodeVerifier string `json:"codeVerifier"`
	RedirectURI  string `json:"redirectUri"`
}

func (req loginRequest) credentials() auth.Credentials {
	return auth.Credentials{
		AccessToken:  req.AccessToken,
		Code:         req.Code,
		CodeVerifier: req.CodeVerifier,
		RedirectURI:  req.RedirectURI,
		Username:     req.Username,
		Password:     req.Password,
	}
}

// HandleLogin returns a handler for one login flow. All of them answer
// with {access, refresh}.
//
//	POST /api/users/login        → password
//	POST /api/users/google       → google
//	POST /api/users/google-code  → google-code
//	POST /api/users/facebook     → facebook
func (h *UserHandler) HandleLogin(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}

		pair, err := h.users.Login(r.Context(), provider, req.credentials())
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

// HandleRefresh handles POST /api/users/token/refresh.
func (h *UserHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	access, err := h.users.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// HandleMe handles GET /api/users/me.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	user, err := h.users.Me(r.Context(), accountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type profilePatchRequest struct {
	Instruments     *string `json:"instruments"`
	Genres          *string `json:"genres"`
	SkillLevel      *string `json:"skill_level"`
	Bio             *string `json:"bio"`
	Location        *string `json:"location"`
	AvatarURL       *string `json:"avatar_url"`
	InstagramHandle *string `json:"instagram_handle"`
	TikTokHandle    *string `json:"tiktok_handle"`
}

func (p profilePatchRequest) patch() service.ProfilePatch {
	return service.ProfilePatch{
		Instruments:     p.Instruments,
		Genres:          p.Genres,
		SkillLevel:      p.SkillLevel,
		Bio:             p.Bio,
		Location:        p.Location,
		AvatarURL:       p.AvatarURL,
		InstagramHandle: p.InstagramHandle,
		TikTokHandle:    p.TikTokHandle,
	}
}

// HandleUpdateMe handles PATCH /api/users/me. The body is either JSON or
// multipart/form-data; only multipart can carry an "avatar" file.
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	var (
		patch  service.ProfilePatch
		avatar *service.AvatarUpload
		err    error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		patch, avatar, err = readMultipartPatch(w, r)
	} else {
		var req profilePatchRequest
		err = decodeJSON(w, r, &req)
		patch = req.patch()
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), accountID, patch, avatar)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func readMultipartPatch(w http.ResponseWriter, r *http.Request) (service.ProfilePatch, *service.AvatarUpload, error) {
	var patch service.ProfilePatch

	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxAvatarBytes+multipartSlack)
	if err := r.ParseMultipartForm(storage.MaxAvatarBytes + multipartSlack); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return patch, nil, apperror.ValidationFailed("avatar", "Avatar must be 5 MB or smaller.")
		}
		return patch, nil, apperror.ValidationFailed("", "Request body must be valid multipart form data.")
	}

	field := func(name string) *string {
		if vs, ok := r.MultipartForm.Value[name]; ok && len(vs) > 0 {
			v := vs[0]
			return &v
		}
		return nil
	}
	patch = service.ProfilePatch{
		Instruments:     field("instruments"),
		Genres:          field("genres"),
		SkillLevel:      field("skill_level"),
		Bio:             field("bio"),
		Location:        field("location"),
		AvatarURL:       field("avatar_url"),
		InstagramHandle: field("instagram_handle"),
		TikTokHandle:    field("tiktok_handle"),
	}

	file, _, err := r.FormFile("avatar")
	if errors.Is(err, http.ErrMissingFile) {
		return patch, nil, nil
	}
	if err != nil {
		return patch, nil, apperror.ValidationFailed("avatar", "The submitted data was not a file.")
	}
	defer file.Close()

	// One byte past the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(file, storage.MaxAvatarBytes+1))
	if err != nil {
		return patch, nil, apperror.ValidationFailed("avatar", "The submitted file could not be read.")
	}
	return patch, &service.AvatarUpload{Data: data}, nil
}
