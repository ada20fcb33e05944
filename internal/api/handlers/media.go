package handlers

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/familiar-chat/mediagate/internal/api/dto"
	"github.com/familiar-chat/mediagate/internal/api/middleware"
	"github.com/familiar-chat/mediagate/internal/auth"
	"github.com/familiar-chat/mediagate/internal/database/models"
	"github.com/familiar-chat/mediagate/internal/media"
	"github.com/go-chi/chi/v5"
)

const (
	defaultMaxMemory = 8 << 20
	defaultMaxBody   = 100 << 20
)

// Authorizer runs the membership part of the authorization chain.
type Authorizer interface {
	Authorize(ctx context.Context, id *auth.Identity, scope auth.Scope) (*auth.Grant, error)
}

// endpoint describes one media route: which slot family it writes, which
// role may call it, and which URL parameter names the owner.
type endpoint struct {
	kind           models.OwnerKind
	role           models.Role
	ownerParam     string
	matchPrincipal bool
	fields         []string
}

var (
	siteImage = endpoint{
		kind:       models.OwnerSite,
		role:       models.RoleUser,
		ownerParam: "siteId",
		fields:     []string{"image_file"},
	}
	userImage = endpoint{
		kind:           models.OwnerUser,
		role:           models.RoleUser,
		ownerParam:     "userId",
		matchPrincipal: true,
		fields:         []string{"image_file"},
	}
	visitorMessageImage = endpoint{
		kind:           models.OwnerVisitorMessage,
		role:           models.RoleVisitor,
		ownerParam:     "visitorId",
		matchPrincipal: true,
		fields:         []string{"image_file"},
	}
	receivedMessageImage = endpoint{
		kind:       models.OwnerVisitorReceivedMessage,
		role:       models.RoleUser,
		ownerParam: "visitorId",
		fields:     []string{"image_file"},
	}
	documentImage = endpoint{
		kind:   models.OwnerDocumentImage,
		role:   models.RoleUser,
		fields: []string{"image_file"},
	}
	documentVideo = endpoint{
		kind:   models.OwnerDocumentVideo,
		role:   models.RoleUser,
		fields: []string{"image_file", "video_file"},
	}
)

type MediaHandler struct {
	authorizer Authorizer
	service    *media.Service
	logger     *slog.Logger
	maxMemory  int64
	maxBody    int64
}

func NewMediaHandler(authorizer Authorizer, service *media.Service, logger *slog.Logger, maxMemory, maxBody int64) *MediaHandler {
	if maxMemory <= 0 {
		maxMemory = defaultMaxMemory
	}
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &MediaHandler{
		authorizer: authorizer,
		service:    service,
		logger:     logger,
		maxMemory:  maxMemory,
		maxBody:    maxBody,
	}
}

func (h *MediaHandler) UploadSiteImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, siteImage)
}

func (h *MediaHandler) UploadUserImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, userImage)
}

func (h *MediaHandler) UploadVisitorMessageImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, visitorMessageImage)
}

func (h *MediaHandler) DeleteVisitorMessageImage(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, visitorMessageImage)
}

func (h *MediaHandler) UploadReceivedMessageImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, receivedMessageImage)
}

func (h *MediaHandler) DeleteReceivedMessageImage(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, receivedMessageImage)
}

func (h *MediaHandler) UploadDocumentImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, documentImage)
}

func (h *MediaHandler) DeleteDocumentImage(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, documentImage)
}

func (h *MediaHandler) UploadDocumentVideo(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, documentVideo)
}

func (h *MediaHandler) DeleteDocumentVideo(w http.ResponseWriter, r *http.Request) {
	h.remove(w, r, documentVideo)
}

// authorize resolves the caller against the endpoint's scope and returns
// the owner id named in the URL.
func (h *MediaHandler) authorize(r *http.Request, ep endpoint) (*auth.Grant, string, error) {
	id := middleware.GetIdentity(r.Context())
	if id == nil {
		return nil, "", auth.ErrUnauthenticated
	}

	orgID := chi.URLParam(r, "organizationId")
	ownerID := ""
	if ep.ownerParam != "" {
		ownerID = chi.URLParam(r, ep.ownerParam)
	}

	scope := auth.OrgScope(orgID, ep.role)
	if ep.matchPrincipal {
		scope = auth.PrincipalScope(orgID, ep.role, ownerID)
	}

	grant, err := h.authorizer.Authorize(r.Context(), id, scope)
	if err != nil {
		return nil, "", err
	}
	return grant, ownerID, nil
}

// upload authorizes before touching the body, so rejected callers never
// cause a multipart parse or scratch files.
func (h *MediaHandler) upload(w http.ResponseWriter, r *http.Request, ep endpoint) {
	grant, ownerID, err := h.authorize(r, ep)
	if err != nil {
		writeFailure(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("failed to remove multipart scratch files", "error", err)
		}
	}()

	file, header, err := formFile(r, ep.fields)
	if err != nil {
		writeFailure(w, err)
		return
	}
	defer file.Close()

	res, err := h.service.Upload(r.Context(), media.UploadInput{
		Grant:       grant,
		Kind:        ep.kind,
		OwnerID:     ownerID,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.FileResponse{FilePath: res.FilePath})
}

func (h *MediaHandler) remove(w http.ResponseWriter, r *http.Request, ep endpoint) {
	grant, ownerID, err := h.authorize(r, ep)
	if err != nil {
		writeFailure(w, err)
		return
	}

	_, err = h.service.Delete(r.Context(), media.DeleteInput{
		Grant:   grant,
		Kind:    ep.kind,
		OwnerID: ownerID,
		Name:    chi.URLParam(r, "name"),
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func formFile(r *http.Request, fields []string) (multipart.File, *multipart.FileHeader, error) {
	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if err == nil {
			return file, header, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, nil, err
		}
	}
	return nil, nil, errMissingFile
}
