package service

import (
	"context"
	"strings"

	"github.com/procural/be-procurement/internal/errors"
	"github.com/procural/be-procurement/internal/logger"
	"github.com/procural/be-procurement/internal/repository"
)

// RequestService handles purchase request business logic outside the
// approval workflow: drafting, reading and discarding requests.
type RequestService struct {
	requestRepo *repository.RequestRepository
	log         *logger.Logger
}

// NewRequestService creates a new request service
func NewRequestService(
	requestRepo *repository.RequestRepository,
	log *logger.Logger,
) *RequestService {
	return &RequestService{
		requestRepo: requestRepo,
		log:         log,
	}
}

// CreateRequestInput represents a create purchase request call
type CreateRequestInput struct {
	RequesterID   string
	Title         string
	Justification *string
	Currency      string
	Lines         []*RequestLineInput
}

// RequestLineInput represents one line of a create request call
type RequestLineInput struct {
	LineNumber  int
	ProductID   *string
	Name        string
	Description *string
	Quantity    float64
	UnitPrice   int64
}

// CreateRequest validates the input and creates a draft purchase request.
// The estimated total is derived from the lines, never taken from the
// caller.
func (s *RequestService) CreateRequest(ctx context.Context, input *CreateRequestInput) (*repository.PurchaseRequest, error) {
	if err := validateCreateRequest(input); err != nil {
		return nil, err
	}

	request := &repository.PurchaseRequest{
		RequesterID:   input.RequesterID,
		Title:         strings.TrimSpace(input.Title),
		Justification: input.Justification,
		Status:        repository.RequestStatusDraft,
		Currency:      strings.ToUpper(input.Currency),
		Lines:         make([]*repository.RequestLine, 0, len(input.Lines)),
	}

	for _, lineInput := range input.Lines {
		request.Lines = append(request.Lines, &repository.RequestLine{
			LineNumber:  lineInput.LineNumber,
			ProductID:   lineInput.ProductID,
			Name:        strings.TrimSpace(lineInput.Name),
			Description: lineInput.Description,
			Quantity:    lineInput.Quantity,
			UnitPrice:   lineInput.UnitPrice,
			LineAmount:  int64(lineInput.Quantity * float64(lineInput.UnitPrice)),
		})
	}

	if err := s.requestRepo.Create(ctx, request); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", request.ID).
		Str("requester_id", request.RequesterID).
		Int64("estimated_total", request.EstimatedTotal).
		Int("line_count", len(request.Lines)).
		Msg("Purchase request created")

	return request, nil
}

// GetRequest retrieves a purchase request with its lines
func (s *RequestService) GetRequest(ctx context.Context, id string) (*repository.PurchaseRequest, error) {
	return s.requestRepo.GetByID(ctx, id)
}

// ListRequests lists purchase requests with filtering and pagination
func (s *RequestService) ListRequests(ctx context.Context, requesterID *string, status *repository.RequestStatus, page, pageSize int) ([]*repository.PurchaseRequest, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.requestRepo.List(ctx, requesterID, status, pageSize, offset)
}

// DeleteRequest discards a draft request. Only the requester may do so,
// and only while the request is still a draft.
func (s *RequestService) DeleteRequest(ctx context.Context, id, callerID string) error {
	request, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if request.RequesterID != callerID {
		return errors.New(errors.ErrCodeUnauthorized, "only the requester can delete a request")
	}

	if err := s.requestRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().
		Str("request_id", id).
		Msg("Purchase request deleted")

	return nil
}

func validateCreateRequest(input *CreateRequestInput) error {
	if strings.TrimSpace(input.RequesterID) == "" {
		return errors.InvalidInput("requester_id", "requester is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return errors.InvalidInput("title", "title is required")
	}
	if len(input.Currency) != 3 {
		return errors.InvalidInput("currency", "currency must be 3-letter ISO code")
	}
	if len(input.Lines) < 1 {
		return errors.InvalidInput("lines", "request must have at least 1 line")
	}

	linesSeen := make(map[int]bool)
	for _, line := range input.Lines {
		if linesSeen[line.LineNumber] {
			return errors.InvalidInput("line_number", "duplicate line number")
		}
		linesSeen[line.LineNumber] = true

		if strings.TrimSpace(line.Name) == "" {
			return errors.InvalidInput("name", "line name is required")
		}
		if line.Quantity <= 0 {
			return errors.InvalidInput("quantity", "quantity must be positive")
		}
		if line.UnitPrice < 0 {
			return errors.InvalidInput("unit_price", "unit price cannot be negative")
		}
	}
	return nil
}
