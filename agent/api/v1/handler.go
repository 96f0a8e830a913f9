package v1

import (
	"errors"
	"net/http"

	"github.com/zfskit/exportd/share"
	"github.com/zfskit/exportd/share/nfs"

	"github.com/labstack/echo/v5"
)

type Handler struct {
	Shares *share.Set
	NFS    *nfs.Protocol
}

// EnableShare validates the options, stores them on the descriptor, rewrites
// the exports file and reloads the kernel export table.
func (h *Handler) EnableShare(c *echo.Context) error {
	var req ShareRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "BAD_REQUEST"})
	}
	if req.Mountpoint == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "mountpoint is required", Code: "BAD_REQUEST"})
	}
	opts := req.Options
	if opts == "" {
		opts = "on"
	}

	if err := h.NFS.ValidateOptions(opts); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "SYNTAX_ERROR"})
	}

	s := h.Shares.Put(req.Mountpoint)
	if err := h.NFS.UpdateOptions(s, opts); err != nil {
		return shareError(c, err)
	}
	if err := h.NFS.EnableShare(s); err != nil {
		return shareError(c, err)
	}
	if err := h.NFS.CommitShares(c.Request().Context()); err != nil {
		return shareError(c, err)
	}

	return c.JSON(http.StatusCreated, ShareStatusResponse{Mountpoint: s.Mountpoint, Shared: true})
}

// DisableShare removes the mountpoint's records and reloads.
func (h *Handler) DisableShare(c *echo.Context) error {
	mountpoint := c.QueryParam("mountpoint")
	if mountpoint == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "mountpoint query parameter is required", Code: "BAD_REQUEST"})
	}

	s := h.Shares.Get(mountpoint)
	if s == nil {
		s = &share.Share{Mountpoint: mountpoint}
	}
	if err := h.NFS.DisableShare(s); err != nil {
		return shareError(c, err)
	}
	h.NFS.ClearOptions(s)
	h.Shares.Remove(mountpoint)

	if err := h.NFS.CommitShares(c.Request().Context()); err != nil {
		return shareError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// ListShares returns the parsed contents of the exports file.
func (h *Handler) ListShares(c *echo.Context) error {
	entries, err := h.NFS.ListExports()
	if err != nil {
		return shareError(c, err)
	}
	if entries == nil {
		entries = []nfs.ExportEntry{}
	}
	return c.JSON(http.StatusOK, ShareListResponse{Exports: entries, Total: len(entries)})
}

// ShareStatus reports whether a mountpoint is currently exported.
func (h *Handler) ShareStatus(c *echo.Context) error {
	mountpoint := c.QueryParam("mountpoint")
	if mountpoint == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "mountpoint query parameter is required", Code: "BAD_REQUEST"})
	}
	shared := h.NFS.IsShared(&share.Share{Mountpoint: mountpoint})
	return c.JSON(http.StatusOK, ShareStatusResponse{Mountpoint: mountpoint, Shared: shared})
}

// Reload re-reads the exports file into the kernel export table.
func (h *Handler) Reload(c *echo.Context) error {
	if err := h.NFS.CommitShares(c.Request().Context()); err != nil {
		return shareError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func shareError(c *echo.Context, err error) error {
	if errors.Is(err, nfs.ErrSyntax) {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "SYNTAX_ERROR"})
	}
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL"})
}
