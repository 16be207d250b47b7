package httpqueue_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/qthttptest"

	"github.com/bakeryqueue/core/httpqueue"
	"github.com/bakeryqueue/core/queue"
)

type staticConfigs map[int]queue.Config

func (s staticConfigs) Config(bakeryID int) (queue.Config, error) {
	cfg, ok := s[bakeryID]
	if !ok {
		return queue.Config{}, qtErrNoConfig
	}
	return cfg, nil
}

var qtErrNoConfig = errNoConfig{}

type errNoConfig struct{}

func (errNoConfig) Error() string { return "no such bakery" }

func testConfigs() staticConfigs {
	return staticConfigs{
		1: {
			BakeryID:         1,
			BreadTypeIDs:     []int{1, 2},
			PrepTimePerBread: []int{30, 45},
			BakingTimeS:      60,
			TimeoutS:         15,
		},
	}
}

func newTestServer() http.Handler {
	q := queue.NewQueue(queue.QueueParams{})
	return httpqueue.NewServeMux(q, testConfigs(), nil)
}

func doJSON(h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var r *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewTicketAndRes(t *testing.T) {
	c := qt.New(t)
	h := newTestServer()

	w := doJSON(h, "POST", "/bakeries/1/tickets", map[string]interface{}{
		"bread_requirements": []int{1, 0},
	})
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	var resp struct {
		TicketNumber int    `json:"ticket_number"`
		Token        string `json:"token"`
	}
	c.Assert(json.Unmarshal(w.Body.Bytes(), &resp), qt.IsNil)
	c.Assert(resp.TicketNumber, qt.Equals, 1)
	c.Assert(resp.Token, qt.Not(qt.Equals), "")

	w2 := doJSON(h, "GET", "/bakeries/1/tokens/"+resp.Token, nil)
	c.Assert(w2.Code, qt.Equals, http.StatusOK)
}

func TestResUnknownTokenIsNotFound(t *testing.T) {
	c := qt.New(t)
	h := newTestServer()

	w := doJSON(h, "GET", "/bakeries/1/tokens/ZZZZZ", nil)
	qthttptest.AssertJSONResponse(c, w, http.StatusNotFound, httpqueue.Error{
		Code:    queue.ErrNotFound,
		Message: `no ticket matches token "ZZZZZ"`,
	})
}

func TestNewTicketRejectsBadReservation(t *testing.T) {
	c := qt.New(t)
	h := newTestServer()

	w := doJSON(h, "POST", "/bakeries/1/tickets", map[string]interface{}{
		"bread_requirements": []int{1},
	})
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)
}

func TestHardwareInit(t *testing.T) {
	c := qt.New(t)
	h := newTestServer()

	w := doJSON(h, "GET", "/bakeries/1/hardware-init", nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	var resp struct {
		PrepTimePerBread []int `json:"prep_time_per_bread"`
	}
	c.Assert(json.Unmarshal(w.Body.Bytes(), &resp), qt.IsNil)
	c.Assert(resp.PrepTimePerBread, qt.DeepEquals, []int{30, 45})
}

func TestNewBreadStampsWaitingTicket(t *testing.T) {
	c := qt.New(t)
	h := newTestServer()

	doJSON(h, "POST", "/bakeries/1/tickets", map[string]interface{}{
		"bread_requirements": []int{1, 0},
	})

	w := doJSON(h, "POST", "/bakeries/1/bread", nil)
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	var resp struct {
		HasCustomer bool `json:"has_customer"`
		CustomerID  int  `json:"customer_id"`
	}
	c.Assert(json.Unmarshal(w.Body.Bytes(), &resp), qt.IsNil)
	c.Assert(resp.HasCustomer, qt.Equals, true)
	c.Assert(resp.CustomerID, qt.Equals, 1)
}

func TestUnknownBakeryIsNotFound(t *testing.T) {
	c := qt.New(t)
	h := newTestServer()

	w := doJSON(h, "GET", "/bakeries/99/hardware-init", nil)
	c.Assert(w.Code, qt.Equals, http.StatusNotFound)
}
