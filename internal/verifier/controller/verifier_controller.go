package controller

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"codeverifier/internal/common/http/middleware"
	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/internal/verifier/service"
	appErr "codeverifier/pkg/errors"
	"codeverifier/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
)

// PayloadParam names the query or form field carrying the JSON request.
const PayloadParam = "jsonrequest"

const defaultMaxBodyBytes = 1 << 20

// Verifier is the service behind the controller.
type Verifier interface {
	Runtimes() []string
	Supported(name string) error
	Verify(ctx context.Context, name string, sub service.Submission) (result.Report, error)
}

// IndexResponse lists the supported runtimes.
type IndexResponse struct {
	Runtimes []string `json:"runtimes"`
}

// VerifierController handles verification requests.
type VerifierController struct {
	svc          Verifier
	maxBodyBytes int64
}

// NewVerifierController creates a new controller. maxBodyBytes bounds the
// decoded request body.
func NewVerifierController(svc Verifier, maxBodyBytes int64) *VerifierController {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &VerifierController{svc: svc, maxBodyBytes: maxBodyBytes}
}

// Index returns the supported runtimes.
func (h *VerifierController) Index(c *gin.Context) {
	response.Success(c, IndexResponse{Runtimes: h.svc.Runtimes()})
}

// Verify runs the submission found in the request with the runtime named by
// the path. GET reads the jsonrequest query parameter; POST reads a JSON body
// or the jsonrequest form field.
func (h *VerifierController) Verify(c *gin.Context) {
	name := c.Param("runtime")
	if err := h.svc.Supported(name); err != nil {
		response.Error(c, err)
		return
	}
	middleware.WithRuntime(c, name)

	var (
		payload []byte
		err     error
	)
	switch c.Request.Method {
	case http.MethodGet:
		payload, err = payloadFromQuery(c)
	case http.MethodPost:
		payload, err = h.payloadFromBody(c)
	default:
		response.ErrorWithCode(c, appErr.MethodNotAllowed, "Unsupported method")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	var sub service.Submission
	if err := json.Unmarshal(payload, &sub); err != nil {
		response.Error(c, appErr.Wrap(err, appErr.PayloadInvalid).WithMessage(appErr.PayloadInvalid.Message()))
		return
	}
	if sub.Solution == "" {
		response.ErrorWithCode(c, appErr.SolutionRequired, "")
		return
	}

	report, err := h.svc.Verify(c.Request.Context(), name, sub)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// MethodNotAllowed answers methods other than GET and POST.
func (h *VerifierController) MethodNotAllowed(c *gin.Context) {
	response.ErrorWithCode(c, appErr.MethodNotAllowed, "Unsupported method")
}

func payloadFromQuery(c *gin.Context) ([]byte, error) {
	raw := strings.TrimSpace(c.Query(PayloadParam))
	if raw == "" {
		return nil, appErr.New(appErr.PayloadMissing).WithMessage("jsonrequest missing from the query string")
	}
	if strings.HasPrefix(raw, "{") {
		return []byte(raw), nil
	}
	payload, err := decodeBase64(raw)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.PayloadInvalid).
			WithMessage("Failed to parse jsonrequest query string (expecting it plain, or alternate base64 encoded)")
	}
	return payload, nil
}

// decodeBase64 accepts the standard and the URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		out, err := enc.DecodeString(s)
		if err == nil {
			return out, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func (h *VerifierController) payloadFromBody(c *gin.Context) ([]byte, error) {
	body, err := h.decodedBody(c)
	if err != nil {
		return nil, err
	}
	c.Request.Body = body
	defer body.Close()

	var payload []byte
	if c.ContentType() == "application/json" {
		payload, err = io.ReadAll(body)
		if err != nil {
			return nil, appErr.Wrap(err, appErr.PayloadInvalid).WithMessage("Failed to parse payload POST body")
		}
	} else {
		payload = []byte(c.PostForm(PayloadParam))
	}

	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, appErr.New(appErr.PayloadMissing).WithMessage("jsonrequest is missing")
	}
	return payload, nil
}

// decodedBody undoes Content-Encoding and caps the body size.
func (h *VerifierController) decodedBody(c *gin.Context) (io.ReadCloser, error) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	switch encoding := strings.ToLower(strings.TrimSpace(c.GetHeader("Content-Encoding"))); encoding {
	case "", "identity":
		return body, nil
	case "zstd":
		dec, err := zstd.NewReader(body, zstd.WithDecoderMaxMemory(uint64(h.maxBodyBytes)))
		if err != nil {
			return nil, appErr.Wrap(err, appErr.PayloadInvalid).WithMessage("Failed to decode zstd body")
		}
		return &zstdBody{dec: dec, src: body, limit: io.LimitReader(dec, h.maxBodyBytes)}, nil
	default:
		return nil, appErr.Newf(appErr.PayloadInvalid, "Unsupported content encoding: %s", encoding)
	}
}

type zstdBody struct {
	dec   *zstd.Decoder
	src   io.Closer
	limit io.Reader
}

func (b *zstdBody) Read(p []byte) (int, error) {
	return b.limit.Read(p)
}

func (b *zstdBody) Close() error {
	b.dec.Close()
	return b.src.Close()
}
