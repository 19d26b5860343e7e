package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/slateai/access-control/internal/audit"
)

// AuditHandler exposes the operator-facing chain verification endpoint.
type AuditHandler struct {
    Writer *audit.Writer
}

func NewAuditHandler(w *audit.Writer) *AuditHandler { return &AuditHandler{Writer: w} }

// VerifyChain replays the whole audit log in creation order, recomputing
// every chain hash, and reports whether the chain is intact and whether
// the stored head matches the last entry. Any mismatch pinpoints the
// first tampered entry.
func (h *AuditHandler) VerifyChain(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()

    entries, err := h.Writer.ListAll(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL_ERROR", "message": "failed to load audit log"})
    }
    head, err := h.Writer.Head(ctx)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL_ERROR", "message": "failed to load chain head"})
    }

    if err := audit.VerifyChain(entries); err != nil {
        return c.JSON(http.StatusOK, echo.Map{
            "intact":  false,
            "entries": len(entries),
            "message": err.Error(),
        })
    }

    want := audit.GenesisHash
    if len(entries) > 0 {
        want = entries[len(entries)-1].ChainHash
    }
    if head != want {
        return c.JSON(http.StatusOK, echo.Map{
            "intact":  false,
            "entries": len(entries),
            "message": "chain head does not match the last entry",
        })
    }

    return c.JSON(http.StatusOK, echo.Map{
        "intact":  true,
        "entries": len(entries),
        "head":    head,
    })
}
