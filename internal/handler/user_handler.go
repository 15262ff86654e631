/*
Package handler provides HTTP handler functions for the user directory:
listing, profile reads and edits, level changes and profile image uploads.
*/
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"livechat/internal/app/storage"
	"livechat/internal/app/user"
	"livechat/internal/pkg/auth/jwt"
	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/logx"
	"livechat/internal/pkg/req"
	"livechat/internal/pkg/resp"
)

// imageCleanupTimeout bounds the background removal of replaced images.
const imageCleanupTimeout = 10 * time.Second

// SetLevelInput is the body of a level change.
type SetLevelInput struct {
	Level int `json:"level"`
}

// PresignImageInput defines the JSON input structure for generating an upload URL.
type PresignImageInput struct {
	Field    string `json:"field"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// HandleListUsers lists every registered user and visitor.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Directory.All(r.Context())
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrReadFailure, err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"users": entries})
	}
}

// HandleGetUser returns the profile of the user or visitor in the path.
func HandleGetUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := deps.Directory.Profile(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrReadFailure, err))
			return
		}
		if entry == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrProfileNotFound))
			return
		}

		resp.RespondSuccess(w, r, entry)
	}
}

// HandleUpdateProfile applies the caller's edits to their registered profile.
// Image fields may reference an uploaded object key, which must belong to the
// caller and exist in storage. Replaced images are removed in the background
// and a token with the new display name and avatar is returned.
func HandleUpdateProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := sessionUser(r)
		if identity.UserType != user.TypeRegistered {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var changes map[string]any
		if customErr := req.BindJSON(w, r, &changes); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		for _, field := range []string{user.FieldAvatar, user.FieldInnerImage} {
			value, _ := changes[field].(string)
			if err := checkImageRef(r.Context(), deps, identity.ID, value); err != nil {
				resp.RespondError(w, r, err)
				return
			}
		}

		before, err := deps.Directory.Profile(r.Context(), identity.ID)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrReadFailure, err))
			return
		}

		if err := deps.Directory.UpdateProfile(r.Context(), identity.ID, changes); err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		after, err := deps.Directory.Profile(r.Context(), identity.ID)
		if err != nil || after == nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrReadFailure, err))
			return
		}

		if before != nil {
			removeReplacedImage(deps, identity.ID, before.Avatar, after.Avatar)
			removeReplacedImage(deps, identity.ID, before.InnerImage, after.InnerImage)
		}

		data := map[string]any{"profile": after}

		newPayload := &jwt.Payload{
			ID:       identity.ID,
			Nickname: after.Name,
			Avatar:   after.Avatar,
			UserType: identity.UserType,
		}
		newToken, err := jwt.GenerateToken(newPayload, deps.Config.JWTSecret, jwt.SessionExpiration)
		if err != nil {
			logx.Error(err, "update_profile: token generation failed, fallback to old token")
		} else {
			data["token"] = newToken
		}

		resp.RespondSuccess(w, r, data)
	}
}

// checkImageRef validates an image field value. External URLs pass through;
// object keys must be issued to userID and refer to a stored image.
func checkImageRef(ctx context.Context, deps *AppDeps, userID, value string) *errs.CustomError {
	if !storage.IsImageKey(value) {
		return nil
	}
	if deps.StorageService == nil {
		return errs.NewError(errs.ErrStorageUnavailable)
	}
	if !storage.OwnsKey(userID, value) {
		return errs.NewError(errs.ErrInvalidParams)
	}

	info, err := deps.StorageService.Stat(ctx, value)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if err != nil {
		return errs.Wrap(errs.ErrReadFailure, err)
	}

	if err := storage.ValidateImage(info.ContentType, info.Size); err != nil {
		return errs.From(err)
	}
	return nil
}

// removeReplacedImage deletes the object behind old when a profile field
// moved away from it.
func removeReplacedImage(deps *AppDeps, userID, old, current string) {
	if deps.StorageService == nil || old == current || !storage.OwnsKey(userID, old) {
		return
	}

	go func(key string) {
		ctx, cancel := context.WithTimeout(context.Background(), imageCleanupTimeout)
		defer cancel()
		if err := deps.StorageService.Delete(ctx, key); err != nil {
			logx.Warn("update_profile: failed to remove replaced image", "key", key, "error", err.Error())
		}
	}(old)
}

// HandleSetLevel sets the level of the user in the path. Only admins may
// change levels.
func HandleSetLevel(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := deps.Resolver.Lookup(r.Context(), sessionUser(r).ID)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrReadFailure, err))
			return
		}
		if caller.Type != user.TypeRegistered || caller.Rank != user.RankAdmin {
			resp.RespondError(w, r, errs.NewError(errs.ErrForbidden))
			return
		}

		var input SetLevelInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		progress, err := deps.Experience.SetLevel(r.Context(), chi.URLParam(r, "userID"), input.Level)
		if err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, progress)
	}
}

// HandlePresignImage creates a time-limited, pre-signed URL for uploading a
// profile image of the caller.
func HandlePresignImage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.StorageService == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrStorageUnavailable))
			return
		}

		identity := sessionUser(r)
		if identity.UserType != user.TypeRegistered {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PresignImageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Field != user.FieldAvatar && input.Field != user.FieldInnerImage {
			resp.RespondError(w, r, errs.NewError(errs.ErrProfileFieldInvalid, input.Field))
			return
		}

		if err := storage.ValidateImage(input.MimeType, input.FileSize); err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		key := storage.ImageKey(identity.ID, input.Field, input.MimeType)

		uploadURL, err := deps.StorageService.PresignUpload(r.Context(), key, input.MimeType, input.FileSize, storage.UploadExpiration)
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"uploadUrl": uploadURL,
			"key":       key,
			"expiresIn": int(storage.UploadExpiration.Seconds()),
		})
	}
}
