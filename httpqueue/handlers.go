package httpqueue

import (
	"context"

	"gopkg.in/errgo.v1"
	"gopkg.in/httprequest.v1"

	"github.com/bakeryqueue/core/queue"
)

// ConfigSource resolves a bakery ID to its static per-day Config. A
// deployment typically backs this with the loaded config.Config's bakery
// list.
type ConfigSource interface {
	Config(bakeryID int) (queue.Config, error)
}

// handler is the receiver httprequest.Server.Handlers binds every route
// method below to; one instance is shared across all requests.
type handler struct {
	queue   *queue.Queue
	configs ConfigSource
	auth    Authenticator
}

func (h handler) config(bakeryID int) (queue.Config, error) {
	cfg, err := h.configs.Config(bakeryID)
	if err != nil {
		return queue.Config{}, errgo.WithCausef(err, queue.ErrNotFound, "bakery %d not configured", bakeryID)
	}
	return cfg, nil
}

func (h handler) authenticate(p httprequest.Params, bakeryID int) error {
	if h.auth == nil {
		return nil
	}
	if err := h.auth.Authenticate(p, bakeryID); err != nil {
		return errgo.WithCausef(err, errAuthFailed, "bearer token rejected for bakery %d", bakeryID)
	}
	return nil
}

// Handlers returns the HTTP routes implementing the bakery queue's
// hardware-facing and customer-facing operations. The returned value is
// suitable for registering on an httprouter.Router: each entry carries a
// Method, Path and httprouter.Handle.
func Handlers(q *queue.Queue, configs ConfigSource, auth Authenticator) []httprequest.Handler {
	f := func(p httprequest.Params) (handler, context.Context, error) {
		return handler{queue: q, configs: configs, auth: auth}, p.Context, nil
	}
	return srv.Handlers(f)
}

// --- hardware-facing operations ---

type newTicketRequest struct {
	httprequest.Route `httprequest:"POST /bakeries/:BakeryID/tickets"`
	BakeryID          int              `httprequest:"BakeryID,path"`
	Body              newTicketRequestBody `httprequest:",body"`
}

type newTicketRequestBody struct {
	BreadRequirements queue.Reservation `json:"bread_requirements"`
}

type newTicketResponse struct {
	TicketNumber   int    `json:"ticket_number"`
	ShowOnDisplay  bool   `json:"show_on_display"`
	Token          string `json:"token"`
	EstimatedWaitS int    `json:"estimated_wait_s,omitempty"`
}

// NewTicket implements POST /bakeries/:BakeryID/tickets.
func (h handler) NewTicket(p httprequest.Params, r *newTicketRequest) (*newTicketResponse, error) {
	if err := h.authenticate(p, r.BakeryID); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	cfg, err := h.config(r.BakeryID)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	result, err := h.queue.NewTicket(r.BakeryID, cfg, r.Body.BreadRequirements)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return &newTicketResponse{
		TicketNumber:   result.Ticket.Number,
		ShowOnDisplay:  result.ShowOnDisplay,
		Token:          result.Token,
		EstimatedWaitS: result.EstimatedWaitS,
	}, nil
}

type newBreadRequest struct {
	httprequest.Route `httprequest:"POST /bakeries/:BakeryID/bread"`
	BakeryID          int `httprequest:"BakeryID,path"`
}

type newBreadResponse struct {
	HasCustomer     bool `json:"has_customer"`
	CustomerID      int  `json:"customer_id,omitempty"`
	CustomerBreads  int  `json:"customer_breads,omitempty"`
	NextCustomer    int  `json:"next_customer,omitempty"`
	NextHasCustomer bool `json:"next_has_customer,omitempty"`
	CorrelationID   string `json:"correlation_id"`
}

// NewBread implements POST /bakeries/:BakeryID/bread.
func (h handler) NewBread(p httprequest.Params, r *newBreadRequest) (*newBreadResponse, error) {
	if err := h.authenticate(p, r.BakeryID); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	cfg, err := h.config(r.BakeryID)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	resp, err := h.queue.NewBread(r.BakeryID, cfg)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return &newBreadResponse{
		HasCustomer:     resp.HasCustomer,
		CustomerID:      resp.CustomerID,
		CustomerBreads:  resp.CustomerBreads,
		NextCustomer:    resp.NextCustomer,
		NextHasCustomer: resp.NextHasCustomer,
		CorrelationID:   resp.CorrelationID,
	}, nil
}

type currentTicketRequest struct {
	httprequest.Route `httprequest:"GET /bakeries/:BakeryID/current-ticket"`
	BakeryID          int `httprequest:"BakeryID,path"`
}

type currentTicketResponse struct {
	Ready           bool `json:"ready"`
	WaitUntilS      int  `json:"wait_until_s,omitempty"`
	CurrentTicketID int  `json:"current_ticket_id"`
}

// CurrentTicket implements GET /bakeries/:BakeryID/current-ticket. The
// ticket it reports on is the lowest active ticket number - the head of
// the queue - which is not always the ticket the oven is presently
// filling: a ticket can sit at the head for a while after its bread
// finishes baking, before it is served or sent to the wait list.
func (h handler) CurrentTicket(p httprequest.Params, r *currentTicketRequest) (*currentTicketResponse, error) {
	if err := h.authenticate(p, r.BakeryID); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	cfg, err := h.config(r.BakeryID)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	n, ok, err := h.queue.CurrentTicketNumber(r.BakeryID)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	if !ok {
		return &currentTicketResponse{Ready: true}, nil
	}
	ts, err := h.queue.CurrentTicket(r.BakeryID, cfg, n)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return &currentTicketResponse{
		Ready:           ts.Readiness.Ready,
		WaitUntilS:      ts.Readiness.WaitS,
		CurrentTicketID: ts.Ticket.Number,
	}, nil
}

type sendToWaitListRequest struct {
	httprequest.Route `httprequest:"POST /bakeries/:BakeryID/current-ticket/wait-list"`
	BakeryID          int `httprequest:"BakeryID,path"`
	Body              sendToWaitListRequestBody `httprequest:",body"`
}

type sendToWaitListRequestBody struct {
	TicketNumber int `json:"ticket_number"`
}

type sendToWaitListResponse struct {
	NextTicketID int `json:"next_ticket_id,omitempty"`
}

// SendCurrentTicketToWaitList implements
// POST /bakeries/:BakeryID/current-ticket/wait-list.
func (h handler) SendCurrentTicketToWaitList(p httprequest.Params, r *sendToWaitListRequest) (*sendToWaitListResponse, error) {
	if err := h.authenticate(p, r.BakeryID); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	if err := h.queue.SendCurrentToWaitList(r.BakeryID, r.Body.TicketNumber); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	status, err := h.queue.QueueStatus(r.BakeryID)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return &sendToWaitListResponse{NextTicketID: status.Prep.CurrentTicket}, nil
}

type serveTicketRequest struct {
	httprequest.Route `httprequest:"POST /bakeries/:BakeryID/tickets/:TicketNumber/serve"`
	BakeryID          int `httprequest:"BakeryID,path"`
	TicketNumber      int `httprequest:"TicketNumber,path"`
}

type serveTicketResponse struct {
	TicketNumber int `json:"ticket_number"`
}

// ServeTicket implements POST /bakeries/:BakeryID/tickets/:TicketNumber/serve.
func (h handler) ServeTicket(p httprequest.Params, r *serveTicketRequest) (*serveTicketResponse, error) {
	if err := h.authenticate(p, r.BakeryID); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	if err := h.queue.ServeWaitList(r.BakeryID, r.TicketNumber); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return &serveTicketResponse{TicketNumber: r.TicketNumber}, nil
}

type serveTicketByTokenRequest struct {
	httprequest.Route `httprequest:"POST /bakeries/:BakeryID/tokens/:Token/serve"`
	BakeryID          int    `httprequest:"BakeryID,path"`
	Token             string `httprequest:"Token,path"`
}

// ServeTicketByToken implements POST /bakeries/:BakeryID/tokens/:Token/serve.
func (h handler) ServeTicketByToken(p httprequest.Params, r *serveTicketByTokenRequest) (*serveTicketResponse, error) {
	if err := h.authenticate(p, r.BakeryID); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	t, err := h.queue.ServeTicketByToken(r.BakeryID, r.Token)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return &serveTicketResponse{TicketNumber: t.Number}, nil
}

type isInWaitListRequest struct {
	httprequest.Route `httprequest:"GET /bakeries/:BakeryID/tickets/:TicketNumber/wait-list"`
	BakeryID          int `httprequest:"BakeryID,path"`
	TicketNumber      int `httprequest:"TicketNumber,path"`
}

type isInWaitListResponse struct {
	InWaitList bool `json:"in_wait_list"`
}

// IsTicketInWaitList implements
// GET /bakeries/:BakeryID/tickets/:TicketNumber/wait-list.
func (h handler) IsTicketInWaitList(p httprequest.Params, r *isInWaitListRequest) (*isInWaitListResponse, error) {
	if err := h.authenticate(p, r.BakeryID); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	in, err := h.queue.IsTicketInWaitList(r.BakeryID, r.TicketNumber)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return &isInWaitListResponse{InWaitList: in}, nil
}

type hardwareInitRequest struct {
	httprequest.Route `httprequest:"GET /bakeries/:BakeryID/hardware-init"`
	BakeryID          int `httprequest:"BakeryID,path"`
}

type hardwareInitResponse struct {
	PrepTimePerBread []int `json:"prep_time_per_bread"`
}

// HardwareInit implements GET /bakeries/:BakeryID/hardware-init.
func (h handler) HardwareInit(p httprequest.Params, r *hardwareInitRequest) (*hardwareInitResponse, error) {
	if err := h.authenticate(p, r.BakeryID); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	cfg, err := h.config(r.BakeryID)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return &hardwareInitResponse{PrepTimePerBread: cfg.PrepTimePerBread}, nil
}

// --- customer-facing operations ---

type resRequest struct {
	httprequest.Route `httprequest:"GET /bakeries/:BakeryID/tokens/:Token"`
	BakeryID          int    `httprequest:"BakeryID,path"`
	Token             string `httprequest:"Token,path"`
}

type resResponse struct {
	Ready                 bool  `json:"ready"`
	AccurateTime          bool  `json:"accurate_time"`
	WaitUntilS            int   `json:"wait_until_s,omitempty"`
	PeopleInQueue         int   `json:"people_in_queue"`
	EmptySlotTimeAvgS     int   `json:"empty_slot_time_avg"`
	InQueueCustomersTimeS int   `json:"in_queue_customers_time"`
	UserBreads            []int `json:"user_breads"`
	CurrentTicketID       int   `json:"current_ticket_id"`
	TicketID              int   `json:"ticket_id"`
}

// Res implements GET /bakeries/:BakeryID/tokens/:Token, the customer
// polling endpoint. It returns 404 with a NotFound discriminator (ticket
// in wait list, ticket served, ticket does not exist) exactly as
// Queue.LookupByToken classifies those cases.
func (h handler) Res(p httprequest.Params, r *resRequest) (*resResponse, error) {
	cfg, err := h.config(r.BakeryID)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	view, err := h.queue.LookupByToken(r.BakeryID, cfg, r.Token)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	status, err := h.queue.QueueStatus(r.BakeryID)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return &resResponse{
		Ready:                 view.Readiness.Ready,
		AccurateTime:          view.Readiness.Precise,
		WaitUntilS:            view.Readiness.WaitS,
		PeopleInQueue:         view.PeopleInQueue,
		EmptySlotTimeAvgS:     view.EmptySlotTimeAvgS,
		InQueueCustomersTimeS: view.InQueueCustomersTimeS,
		UserBreads:            []int(view.UserBreads),
		CurrentTicketID:       status.Prep.CurrentTicket,
		TicketID:              view.TicketNumber,
	}, nil
}

type queueUntilTicketSummaryRequest struct {
	httprequest.Route `httprequest:"GET /bakeries/:BakeryID/tokens/:Token/summary"`
	BakeryID          int    `httprequest:"BakeryID,path"`
	Token             string `httprequest:"Token,path"`
}

type ticketBreadCountResponse struct {
	TicketNumber int   `json:"ticket_number"`
	Breads       []int `json:"breads"`
}

type queueUntilTicketSummaryResponse struct {
	PeopleInQueueUntilTicket int                        `json:"people_in_queue_until_this_ticket"`
	TicketsAndBreadCounts    []ticketBreadCountResponse `json:"tickets_and_their_bread_count"`
}

// QueueUntilTicketSummary implements
// GET /bakeries/:BakeryID/tokens/:Token/summary.
func (h handler) QueueUntilTicketSummary(p httprequest.Params, r *queueUntilTicketSummaryRequest) (*queueUntilTicketSummaryResponse, error) {
	summary, err := h.queue.QueueUntilTicketSummary(r.BakeryID, r.Token)
	if err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	resp := &queueUntilTicketSummaryResponse{
		PeopleInQueueUntilTicket: summary.PeopleInQueueUntilTicket,
	}
	for _, t := range summary.TicketsAndBreadCounts {
		resp.TicketsAndBreadCounts = append(resp.TicketsAndBreadCounts, ticketBreadCountResponse{
			TicketNumber: t.TicketNumber,
			Breads:       []int(t.Breads),
		})
	}
	return resp, nil
}
