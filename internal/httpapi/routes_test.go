package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/basalt-db/basalt/pkg/database"
	"github.com/basalt-db/basalt/pkg/entity"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := database.New(nil)
	db.CloseRegistration()
	return New(db, Config{Logger: zap.NewNop()})
}

func clientTableBody() database.TableDescriptionView {
	return database.TableDescriptionView{
		Name: "Client",
		Key: entity.DescriptionView{
			Fields: map[string]entity.FieldView{"id": {TypeName: "u64"}},
		},
		Value: entity.DescriptionView{
			Fields: map[string]entity.FieldView{
				"full_name": {TypeName: "string"},
				"age":       {TypeName: "u64"},
			},
		},
	}
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(buf))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHTTPCreateTableAndInfo(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/meta/table", clientTableBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var info struct {
		Tables []string `json:"tables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(info.Tables) != 1 || info.Tables[0] != "Client" {
		t.Fatalf("expected [Client], got %v", info.Tables)
	}
}

func TestHTTPPutGetCommitFlow(t *testing.T) {
	s := newTestServer(t)

	if rec := doJSON(t, s, http.MethodPost, "/meta/table", clientTableBody()); rec.Code != http.StatusCreated {
		t.Fatalf("create table: %d %s", rec.Code, rec.Body.String())
	}

	startRec := doJSON(t, s, http.MethodPost, "/tx/pessimistic/start", nil)
	if startRec.Code != http.StatusOK {
		t.Fatalf("tx start: %d %s", startRec.Code, startRec.Body.String())
	}
	var startResp struct {
		TxID uint32 `json:"tx_id"`
	}
	if err := json.Unmarshal(startRec.Body.Bytes(), &startResp); err != nil {
		t.Fatalf("unmarshal start: %v", err)
	}

	putBody := map[string]interface{}{
		"tx_id": startResp.TxID,
		"data": map[string]interface{}{
			"key":   json.RawMessage(`{"id":2}`),
			"value": json.RawMessage(`{"full_name":"John Doe","age":23}`),
		},
	}
	if rec := doJSON(t, s, http.MethodPost, "/put/Client", putBody); rec.Code != http.StatusNoContent {
		t.Fatalf("put: %d %s", rec.Code, rec.Body.String())
	}

	getRec := doJSON(t, s, http.MethodGet, "/get/Client/"+itoa(startResp.TxID)+"/%7B%22id%22%3A2%7D", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", getRec.Code, getRec.Body.String())
	}
	var gotValue struct {
		FullName string `json:"full_name"`
	}
	if err := json.Unmarshal(getRec.Body.Bytes(), &gotValue); err != nil {
		t.Fatalf("unmarshal get: %v", err)
	}
	if gotValue.FullName != "John Doe" {
		t.Fatalf("unexpected value: %s", getRec.Body.String())
	}

	stopRec := doJSON(t, s, http.MethodDelete, "/tx/pessimistic/stop/"+itoa(startResp.TxID), nil)
	if stopRec.Code != http.StatusNoContent {
		t.Fatalf("commit: %d %s", stopRec.Code, stopRec.Body.String())
	}
}

func TestHTTPRollback(t *testing.T) {
	s := newTestServer(t)
	if rec := doJSON(t, s, http.MethodPost, "/meta/table", clientTableBody()); rec.Code != http.StatusCreated {
		t.Fatalf("create table: %d %s", rec.Code, rec.Body.String())
	}

	startRec := doJSON(t, s, http.MethodPost, "/tx/pessimistic/start", nil)
	var startResp struct {
		TxID uint32 `json:"tx_id"`
	}
	json.Unmarshal(startRec.Body.Bytes(), &startResp)

	putBody := map[string]interface{}{
		"tx_id": startResp.TxID,
		"data": map[string]interface{}{
			"key":   json.RawMessage(`{"id":7}`),
			"value": json.RawMessage(`{"full_name":"Temp","age":1}`),
		},
	}
	doJSON(t, s, http.MethodPost, "/put/Client", putBody)

	rollbackRec := doJSON(t, s, http.MethodDelete, "/tx/pessimistic/rollback/"+itoa(startResp.TxID), nil)
	if rollbackRec.Code != http.StatusNoContent {
		t.Fatalf("rollback: %d %s", rollbackRec.Code, rollbackRec.Body.String())
	}

	tx2Rec := doJSON(t, s, http.MethodPost, "/tx/pessimistic/start", nil)
	var tx2Resp struct {
		TxID uint32 `json:"tx_id"`
	}
	json.Unmarshal(tx2Rec.Body.Bytes(), &tx2Resp)

	getRec := doJSON(t, s, http.MethodGet, "/get/Client/"+itoa(tx2Resp.TxID)+"/%7B%22id%22%3A7%7D", nil)
	if getRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for rolled-back row, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

// TestHTTPStopWrongModeRejected starts a pessimistic transaction and tries
// to stop it through the optimistic route, which must be rejected as a
// wrong-transaction mismatch rather than silently committing it.
func TestHTTPStopWrongModeRejected(t *testing.T) {
	s := newTestServer(t)
	startRec := doJSON(t, s, http.MethodPost, "/tx/pessimistic/start", nil)
	var startResp struct {
		TxID uint32 `json:"tx_id"`
	}
	json.Unmarshal(startRec.Body.Bytes(), &startResp)

	rec := doJSON(t, s, http.MethodDelete, "/tx/optimistic/stop/"+itoa(startResp.TxID), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mode mismatch, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHTTPUnknownTableReturns404(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/meta/table/NoSuchTable", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func itoa(n uint32) string {
	b, _ := json.Marshal(n)
	return string(b)
}
