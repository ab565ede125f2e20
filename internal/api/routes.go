package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/signalctl/internal/bridge"
	"github.com/danmuck/signalctl/internal/iso"
	"github.com/danmuck/signalctl/internal/terminal"
	"github.com/gin-gonic/gin"
)

type connectionBody struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": s.info.Name,
		"time":    time.Now().UTC(),
	})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()
	conn, err := s.bridge.Session().Connection(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"connection": conn.Status,
		"pending":    s.bridge.Pending(),
	})
}

func (s *Server) about(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    s.info.Name,
		"version": s.info.Version,
		"started": s.started.UTC(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"notice":  "use only on test environments",
	})
}

// submit runs req through the bridge and writes the outcome.
func (s *Server) submit(c *gin.Context, req bridge.Request) {
	res, _ := s.bridge.Submit(c.Request.Context(), req)
	if res.Failed() {
		c.JSON(res.Status, gin.H{"detail": res.Error})
		return
	}
	c.JSON(res.Status, s.render(res.Response))
}

func (s *Server) render(v any) any {
	switch out := v.(type) {
	case iso.Transaction:
		return s.bridge.Present(out)
	case map[string]iso.Transaction:
		rendered := make(map[string]any, len(out))
		for id, tx := range out {
			rendered[id] = s.bridge.Present(tx)
		}
		return rendered
	case []iso.Transaction:
		rendered := make([]any, 0, len(out))
		for _, tx := range out {
			rendered = append(rendered, s.bridge.Present(tx))
		}
		return rendered
	default:
		return v
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("%v: %v", bridge.ErrBadRequest, err)})
}

func (s *Server) getConnection(c *gin.Context) {
	s.submit(c, bridge.Request{Type: bridge.GetConnection})
}

func (s *Server) connectionAction(t bridge.RequestType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body connectionBody
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				badRequest(c, err)
				return
			}
		}
		s.submit(c, bridge.Request{
			Type:       t,
			Connection: &terminal.Connection{Host: body.Host, Port: body.Port},
		})
	}
}

func (s *Server) getTransactions(c *gin.Context) {
	s.submit(c, bridge.Request{Type: bridge.GetTransactions})
}

func (s *Server) getTransaction(c *gin.Context) {
	s.submit(c, bridge.Request{Type: bridge.GetTransaction, TransactionID: c.Param("id")})
}

func (s *Server) sendTransaction(c *gin.Context) {
	var tx iso.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		badRequest(c, err)
		return
	}
	s.submit(c, bridge.Request{Type: bridge.OutgoingTransaction, Transaction: &tx})
}

func (s *Server) reverseTransaction(c *gin.Context) {
	s.submit(c, bridge.Request{Type: bridge.ReverseTransaction, TransactionID: c.Param("id")})
}

func (s *Server) getReversible(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.bridge.Config().API.WaitTimeout.Duration)
	defer cancel()
	list, err := s.bridge.Session().Reversible(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.render(list))
}

func (s *Server) getSpec(c *gin.Context) {
	s.submit(c, bridge.Request{Type: bridge.GetSpec})
}

func (s *Server) updateSpec(c *gin.Context) {
	var spec iso.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		badRequest(c, err)
		return
	}
	s.submit(c, bridge.Request{Type: bridge.UpdateSpec, Spec: &spec})
}

func (s *Server) getConfig(c *gin.Context) {
	s.submit(c, bridge.Request{Type: bridge.GetConfig})
}

// updateConfig decodes the body over the active config so omitted keys keep their values.
func (s *Server) updateConfig(c *gin.Context) {
	cfg := s.bridge.Config()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err)
		return
	}
	s.submit(c, bridge.Request{Type: bridge.UpdateConfig, Config: &cfg})
}
