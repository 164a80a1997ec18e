package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/services"
	apperrors "github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/errors"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/response"
)

// ContactHandler exposes the contact CRUD surface.
type ContactHandler struct {
	svc *services.ContactService
}

// NewContactHandler constructs a ContactHandler.
func NewContactHandler(svc *services.ContactService) *ContactHandler {
	return &ContactHandler{svc: svc}
}

type contactDTO struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func mapContact(contact *models.Contact) contactDTO {
	dto := contactDTO{
		ID:      contact.ID,
		Name:    contact.Name,
		Email:   contact.Email,
		Phone:   contact.Phone,
		Address: contact.Address,
	}
	if !contact.CreatedAt.IsZero() {
		dto.CreatedAt = contact.CreatedAt.Format(time.RFC3339)
	}
	if !contact.UpdatedAt.IsZero() {
		dto.UpdatedAt = contact.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

type contactRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=120"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"max=32"`
	Address string `json:"address" validate:"max=250"`
}

func (r contactRequest) toInput() services.ContactInput {
	return services.ContactInput{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Address: r.Address,
	}
}

// List handles GET /api/contacts
func (h *ContactHandler) List(c *gin.Context) {
	if h == nil || h.svc == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	contacts, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	dtos := make([]contactDTO, 0, len(contacts))
	for i := range contacts {
		dtos = append(dtos, mapContact(&contacts[i]))
	}

	response.Success(c, http.StatusOK, dtos)
}

// Get handles GET /api/contacts/:id
func (h *ContactHandler) Get(c *gin.Context) {
	if h == nil || h.svc == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	contact, err := h.svc.GetByID(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapContact(contact))
}

// Create handles POST /api/contacts
func (h *ContactHandler) Create(c *gin.Context) {
	if h == nil || h.svc == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	var body contactRequest
	if !bindAndValidate(c, &body) {
		return
	}

	contact, err := h.svc.Create(requestContext(c), body.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, mapContact(contact))
}

// Update handles PUT /api/contacts/:id
func (h *ContactHandler) Update(c *gin.Context) {
	if h == nil || h.svc == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var body contactRequest
	if !bindAndValidate(c, &body) {
		return
	}

	contact, err := h.svc.Update(requestContext(c), id, body.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapContact(contact))
}

// Delete handles DELETE /api/contacts/:id
func (h *ContactHandler) Delete(c *gin.Context) {
	if h == nil || h.svc == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
