package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/basalt-db/basalt/pkg/database"
	"github.com/basalt-db/basalt/pkg/lock"
	"github.com/basalt-db/basalt/pkg/ndgerrors"
)

func (s *Server) registerRoutes() {
	s.engine.GET("/info", s.handleInfo)
	s.engine.POST("/meta/table", s.handleCreateTable)
	s.engine.GET("/meta/table/:name", s.handleTableMeta)
	s.engine.GET("/meta/tx/list", s.handleListTransactions)
	s.engine.POST("/tx/:mode/start", s.handleTxStart)
	s.engine.DELETE("/tx/:mode/stop/:tx_id", s.handleTxStop)
	s.engine.DELETE("/tx/:mode/rollback/:tx_id", s.handleTxRollback)
	s.engine.POST("/put/:table_name", s.handlePut)
	s.engine.GET("/get/:table/:tx/:key", s.handleGet)
	s.engine.GET("/get/:table/:tx/:start/:count", s.handleScan)
}

func parseMode(raw string) (lock.Mode, error) {
	switch raw {
	case "optimistic":
		return lock.Optimistic, nil
	case "pessimistic":
		return lock.Pessimistic, nil
	default:
		return 0, &ndgerrors.BadSchemaError{Reason: "mode must be \"optimistic\" or \"pessimistic\", got " + raw}
	}
}

func parseTxID(raw string) (uint32, error) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, &ndgerrors.BadSchemaError{Reason: "tx_id must be a non-negative integer"}
	}
	return uint32(n), nil
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tables": s.db.TablesMeta()})
}

func (s *Server) handleCreateTable(c *gin.Context) {
	var view database.TableDescriptionView
	if err := c.ShouldBindJSON(&view); err != nil {
		writeError(c, &ndgerrors.BadSchemaError{Reason: err.Error()})
		return
	}
	if err := s.db.CreateTable(view); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": view.Name})
}

func (s *Server) handleTableMeta(c *gin.Context) {
	view, ok := s.db.TableMeta(c.Param("name"))
	if !ok {
		writeError(c, &ndgerrors.TableNotFoundError{Name: c.Param("name")})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleListTransactions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"transactions": s.db.ListTransactions()})
}

func (s *Server) handleTxStart(c *gin.Context) {
	mode, err := parseMode(c.Param("mode"))
	if err != nil {
		writeError(c, err)
		return
	}
	id, err := s.db.Begin(mode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_id": id})
}

// checkMode validates that txID was actually started in routeMode,
// reporting a WrongTransactionError otherwise — a /tx/optimistic/... URL
// must not be allowed to stop or roll back a pessimistic transaction.
func (s *Server) checkMode(txID uint32, routeMode lock.Mode) error {
	actual, err := s.db.TransactionMode(txID)
	if err != nil {
		return err
	}
	if actual != routeMode {
		return &ndgerrors.WrongTransactionError{Actual: uint32(actual), Expected: uint32(routeMode)}
	}
	return nil
}

func (s *Server) handleTxStop(c *gin.Context) {
	mode, err := parseMode(c.Param("mode"))
	if err != nil {
		writeError(c, err)
		return
	}
	txID, err := parseTxID(c.Param("tx_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.checkMode(txID, mode); err != nil {
		writeError(c, err)
		return
	}
	if err := s.db.Commit(txID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTxRollback(c *gin.Context) {
	mode, err := parseMode(c.Param("mode"))
	if err != nil {
		writeError(c, err)
		return
	}
	txID, err := parseTxID(c.Param("tx_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.checkMode(txID, mode); err != nil {
		writeError(c, err)
		return
	}
	if err := s.db.Rollback(txID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type putRequest struct {
	TxID uint32 `json:"tx_id"`
	Data struct {
		Key   json.RawMessage `json:"key"`
		Value json.RawMessage `json:"value"`
	} `json:"data"`
}

func (s *Server) handlePut(c *gin.Context) {
	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &ndgerrors.BadSchemaError{Reason: err.Error()})
		return
	}
	if err := s.db.Put(req.TxID, c.Param("table_name"), req.Data.Key, req.Data.Value); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGet(c *gin.Context) {
	txID, err := parseTxID(c.Param("tx"))
	if err != nil {
		writeError(c, err)
		return
	}
	keyParam := c.Param("key")
	if decoded, uerr := url.QueryUnescape(keyParam); uerr == nil {
		keyParam = decoded
	}

	value, found, err := s.db.Get(txID, c.Param("table"), json.RawMessage(keyParam))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		writeError(c, &ndgerrors.EntityNotFoundError{Key: keyParam})
		return
	}
	c.Data(http.StatusOK, "application/json", value)
}

func (s *Server) handleScan(c *gin.Context) {
	txID, err := parseTxID(c.Param("tx"))
	if err != nil {
		writeError(c, err)
		return
	}
	skip, err := strconv.Atoi(c.Param("start"))
	if err != nil {
		writeError(c, &ndgerrors.BadSchemaError{Reason: "start must be an integer"})
		return
	}
	take, err := strconv.Atoi(c.Param("count"))
	if err != nil {
		writeError(c, &ndgerrors.BadSchemaError{Reason: "count must be an integer"})
		return
	}

	pairs, err := s.db.Scan(txID, c.Param("table"), skip, take)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pairs)
}
