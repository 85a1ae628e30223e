package subscription

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"

	resp "github.com/casafolio/billhook/response"

	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// Webhook deliveries are small JSON documents, anything larger is suspect
const maxBodyBytes = int64(65536)

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	Verifier      *Verifier
	Dispatcher    *Dispatcher
	Subscriptions Store
	Logger        *zap.Logger
}

// Service is the webhook API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the webhook API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.Verifier == nil {
		return nil, fmt.Errorf("nil Verifier is invalid")
	}
	if option.Dispatcher == nil {
		return nil, fmt.Errorf("nil Dispatcher is invalid")
	}
	if option.Subscriptions == nil {
		return nil, fmt.Errorf("nil Subscriptions is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

type webhookAck struct {
	Received bool `json:"received"`
}

func (s *Service) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// The signature is computed over the exact bytes on the wire, so the
	// body must reach the verifier unparsed
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := ioutil.ReadAll(r.Body)
	if err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Unable to read request body"))
		return
	}

	event, err := s.Verifier.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.Logger.Warn("Rejecting webhook delivery",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Webhook verification failed"))
		return
	}

	logger := s.Logger.With(zap.String("EventType", event.eventType()))

	if err := s.Dispatcher.Dispatch(ctx, event); err != nil {
		if errors.Is(err, ErrMissingRequiredData) {
			logger.Warn("Webhook event is missing required data",
				zap.Error(err),
			)
			resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Event is missing required data"))
			return
		}
		logger.Error("Unable to process webhook event",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to process event"))
		return
	}

	resp.WriteResponse(w, r, webhookAck{Received: true})
}

func (s *Service) getPropertySubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID := chi.URLParam(r, "propertyID")

	logger := s.Logger.With(zap.String("PropertyID", propertyID))

	sub, err := s.Subscriptions.GetActiveForProperty(ctx, propertyID)
	if err != nil {
		logger.Error("Unable to get subscription for property",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected().AddMessages("Unable to get subscription"))
		return
	}
	if sub == nil {
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Property has no active subscription"))
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) healthCheck(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

// Router will return the routes under the webhook API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.healthCheck)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/properties/{propertyID}/subscription", s.getPropertySubscription)

	return r
}
