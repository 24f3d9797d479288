package statuscheck

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "time"
)

const notConfigured = "Not configured"

// Pinger models the minimal capability we need from Redis and the archive.
type Pinger interface {
    Ping(ctx context.Context) error
}

// ToolFinder locates an external binary.
type ToolFinder interface {
    Find() (string, error)
}

// Checker aggregates readiness checks for the dependencies of the service.
type Checker struct {
    redis       Pinger
    archive     Pinger
    ghostscript ToolFinder
    mupdf       func() error
    timeout     time.Duration
}

// Options configures the Checker. Nil fields are reported as not configured.
type Options struct {
    Redis       Pinger
    Archive     Pinger
    Ghostscript ToolFinder
    MuPDF       func() error
    Timeout     time.Duration
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Ghostscript Status `json:"ghostscript"`
    Redis       Status `json:"redis"`
    S3          Status `json:"s3"`
    MuPDF       Status `json:"mupdf"`
}

// Ready reports whether jobs can run. Ghostscript and the archive only
// degrade output, so they do not count.
func (s Summary) Ready() bool { return s.MuPDF.OK && s.Redis.OK }

func New(opts Options) *Checker {
    if opts.Timeout <= 0 { opts.Timeout = 3 * time.Second }
    return &Checker{
        redis:       opts.Redis,
        archive:     opts.Archive,
        ghostscript: opts.Ghostscript,
        mupdf:       opts.MuPDF,
        timeout:     opts.Timeout,
    }
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Ghostscript: c.checkGhostscript(),
        Redis:       c.ping(ctx, c.redis),
        S3:          c.ping(ctx, c.archive),
        MuPDF:       c.checkMuPDF(),
    }
}

// Handler serves the summary as JSON, 503 when not ready.
func (c *Checker) Handler() http.HandlerFunc {
    return func(w http.ResponseWriter, r *http.Request) {
        s := c.Summary(r.Context())
        code := http.StatusOK
        if !s.Ready() { code = http.StatusServiceUnavailable }
        w.Header().Set("Content-Type", "application/json")
        w.WriteHeader(code)
        _ = json.NewEncoder(w).Encode(map[string]any{"ready": s.Ready(), "checks": s})
    }
}

func (c *Checker) ping(ctx context.Context, p Pinger) Status {
    if p == nil {
        return Status{OK: true, Message: notConfigured}
    }
    ctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    if err := p.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkGhostscript() Status {
    if c.ghostscript == nil {
        return Status{OK: false, Message: notConfigured}
    }
    p, err := c.ghostscript.Find()
    if err != nil {
        return Status{OK: false, Message: "Binary not found"}
    }
    return Status{OK: true, Message: p}
}

func (c *Checker) checkMuPDF() Status {
    if c.mupdf == nil {
        return Status{OK: false, Message: notConfigured}
    }
    if err := c.mupdf(); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
