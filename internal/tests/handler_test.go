package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"paygate/internal/handler"
)

func newCallbackRouter(f *pipelineFixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handler.NewCallbackHandler(f.callbacks)

	router := gin.New()
	router.POST("/callbacks/mpesa/stk", h.STKResult)
	router.POST("/callbacks/mpesa/c2b/confirmation", h.C2BConfirmation)
	return router
}

func TestCallbackEndpointsAlwaysAcknowledge(t *testing.T) {
	f := newPipelineFixture()
	router := newCallbackRouter(f)

	cases := []struct {
		name string
		path string
		body string
	}{
		{"stk malformed json", "/callbacks/mpesa/stk", `{"Body": [not json`},
		{"stk empty body", "/callbacks/mpesa/stk", ``},
		{"c2b malformed json", "/callbacks/mpesa/c2b/confirmation", `{"TransID": 42`},
		{"c2b unmatched payment", "/callbacks/mpesa/c2b/confirmation",
			`{"TransactionType":"Pay Bill","TransID":"SBC900","TransTime":"20240314153045","TransAmount":"123.00","BusinessShortCode":"600986","MSISDN":"254712345678"}`},
	}

	for _, c := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, c.path, strings.NewReader(c.body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", c.name, w.Code)
		}
	}
}

func TestC2BResponseEnvelope(t *testing.T) {
	f := newPipelineFixture()
	router := newCallbackRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/callbacks/mpesa/c2b/confirmation",
		strings.NewReader(`{"TransID":"SBC901","TransAmount":"50.00","TransTime":"20240314153045","MSISDN":"254712345678"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp["ResultCode"] != "0" || resp["ResultDesc"] != "Success" {
		t.Errorf("unexpected envelope: %v", resp)
	}

	// The unmatched payment still left a durable trace.
	if f.ledgerRepo.Entry("SBC901") == nil {
		t.Error("expected ledger entry for acknowledged payment")
	}
}

func TestSTKResponseEnvelope(t *testing.T) {
	f := newPipelineFixture()
	router := newCallbackRouter(f)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/callbacks/mpesa/stk",
		strings.NewReader(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp["ResultCode"] != float64(0) || resp["ResultDesc"] != "Accepted" {
		t.Errorf("unexpected envelope: %v", resp)
	}
}
