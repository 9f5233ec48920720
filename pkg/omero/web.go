package omero

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/cecad-imaging/omerowatch/pkg/settings"
	"github.com/go-resty/resty/v2"
	"golang.org/x/image/tiff"
)

// OMERO.web endpoints.
const (
	pathToken     = "/api/v0/token/"
	pathServers   = "/api/v0/servers/"
	pathLogin     = "/api/v0/login/"
	pathImage     = "/api/v0/m/images/%s/"
	pathRender    = "/webgateway/render_image/%s/0/0/"
	pathTile      = "/tile/%s/0/%d/0"
	pathKeepalive = "/webclient/keepalive_ping/"
	pathLogout    = "/webclient/logout/"
)

// Plane sources
const (
	// PlaneSourcePixelBuffer reads raw pixel values from the pixel buffer
	// service (/tile) mounted next to OMERO.web. Only uint8 and uint16
	// images are accepted; values are kept unscaled.
	PlaneSourcePixelBuffer = "pixel-buffer"

	// PlaneSourceRender reads the server's 8-bit greyscale display
	// rendering. Values are 0-255 whatever the image's pixel type.
	PlaneSourceRender = "render"
)

// WebOptions configures the OMERO.web transport
type WebOptions struct {
	Scheme             string
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	InsecureSkipVerify bool
	PlaneSource        string
}

// WebConnector talks to the OMERO.web JSON API
type WebConnector struct {
	opts WebOptions
}

// NewWebConnector creates a connector. Zero timeouts fall back to 10s dial
// and 30s per request.
func NewWebConnector(opts WebOptions) *WebConnector {
	if opts.Scheme == "" {
		opts.Scheme = "https"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.PlaneSource == "" {
		opts.PlaneSource = PlaneSourcePixelBuffer
	}
	return &WebConnector{opts: opts}
}

type tokenResponse struct {
	Data string `json:"data"`
}

type serverInfo struct {
	ID     int    `json:"id"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Server string `json:"server"`
}

type serversResponse struct {
	Data []serverInfo `json:"data"`
}

type loginResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	EventContext struct {
		UserName string `json:"userName"`
		UserID   int64  `json:"userId"`
	} `json:"eventContext"`
}

type imageResponse struct {
	Data struct {
		ID     int64  `json:"@id"`
		Name   string `json:"Name"`
		Pixels struct {
			SizeX int `json:"SizeX"`
			SizeY int `json:"SizeY"`
			SizeC int `json:"SizeC"`
			Type  struct {
				Value string `json:"value"`
			} `json:"Type"`
		} `json:"Pixels"`
	} `json:"data"`
}

// BaseURL builds the OMERO.web root URL from the connection settings.
func (w *WebConnector) BaseURL(cfg settings.ConnectionConfig) (string, error) {
	port, err := cfg.PortNumber()
	if err != nil {
		return "", err
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	return fmt.Sprintf("%s://%s", w.opts.Scheme, net.JoinHostPort(host, strconv.Itoa(port))), nil
}

func (w *WebConnector) newHTTPClient(baseURL string) *resty.Client {
	dialer := &net.Dialer{Timeout: w.opts.ConnectTimeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: w.opts.ConnectTimeout,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: w.opts.InsecureSkipVerify},
	}

	return resty.New().
		SetTransport(transport).
		SetBaseURL(baseURL).
		SetTimeout(w.opts.ReadTimeout).
		SetHeader("Accept", "application/json")
}

// Connect fetches a CSRF token, picks a server and logs in.
func (w *WebConnector) Connect(ctx context.Context, cfg settings.ConnectionConfig) (Session, error) {
	baseURL, err := w.BaseURL(cfg)
	if err != nil {
		return nil, errors.Classify(errors.KindConnection, ReasonInvalidConfig, err)
	}

	client := w.newHTTPClient(baseURL)

	resp, err := client.R().SetContext(ctx).Get(pathToken)
	if err != nil {
		return nil, errors.Classify(errors.KindConnection, ReasonUnreachable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errors.New(errors.KindConnection, ReasonProtocol, "token request returned %d", resp.StatusCode())
	}
	var token tokenResponse
	if err := sonic.Unmarshal(resp.Body(), &token); err != nil || token.Data == "" {
		return nil, errors.New(errors.KindConnection, ReasonProtocol, "token response not understood: %v", err)
	}

	// Django checks both the token header and the referer on HTTPS.
	client.SetHeader("X-CSRFToken", token.Data)
	client.SetHeader("Referer", baseURL+"/")

	serverID, err := w.pickServer(ctx, client, cfg)
	if err != nil {
		return nil, err
	}

	resp, err = client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": cfg.Username,
			"password": cfg.Password,
			"server":   strconv.Itoa(serverID),
		}).
		Post(pathLogin)
	if err != nil {
		return nil, errors.Classify(errors.KindConnection, ReasonUnreachable, err)
	}

	var login loginResponse
	decodeErr := sonic.Unmarshal(resp.Body(), &login)

	switch {
	case resp.StatusCode() == http.StatusForbidden || resp.StatusCode() == http.StatusUnauthorized:
		return nil, errors.New(errors.KindConnection, ReasonAuthRejected, "login rejected: %s", loginMessage(login, resp.StatusCode()))
	case resp.StatusCode() != http.StatusOK:
		return nil, errors.New(errors.KindConnection, ReasonProtocol, "login returned %d", resp.StatusCode())
	case decodeErr != nil:
		return nil, errors.New(errors.KindConnection, ReasonProtocol, "login response not understood: %v", decodeErr)
	case !login.Success:
		return nil, errors.New(errors.KindConnection, ReasonAuthRejected, "login rejected: %s", loginMessage(login, resp.StatusCode()))
	}

	slog.Info("omero_web_login_ok", "base_url", baseURL, "server_id", serverID, "user", login.EventContext.UserName)

	return &webSession{client: client, baseURL: baseURL, planeSource: w.opts.PlaneSource}, nil
}

func loginMessage(login loginResponse, status int) string {
	if login.Message != "" {
		return login.Message
	}
	return fmt.Sprintf("status %d", status)
}

// pickServer returns the id of the server entry matching the configured
// host, or the first entry. The configured port is the OMERO.web port, not
// the server's, so it is not compared.
func (w *WebConnector) pickServer(ctx context.Context, client *resty.Client, cfg settings.ConnectionConfig) (int, error) {
	resp, err := client.R().SetContext(ctx).Get(pathServers)
	if err != nil {
		return 0, errors.Classify(errors.KindConnection, ReasonUnreachable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, errors.New(errors.KindConnection, ReasonProtocol, "server list returned %d", resp.StatusCode())
	}

	var servers serversResponse
	if err := sonic.Unmarshal(resp.Body(), &servers); err != nil {
		return 0, errors.New(errors.KindConnection, ReasonProtocol, "server list not understood: %v", err)
	}
	if len(servers.Data) == 0 {
		return 0, errors.New(errors.KindConnection, ReasonProtocol, "server list is empty")
	}

	for _, s := range servers.Data {
		if strings.EqualFold(s.Host, strings.TrimSpace(cfg.Host)) {
			return s.ID, nil
		}
	}
	return servers.Data[0].ID, nil
}

type webSession struct {
	client      *resty.Client
	baseURL     string
	planeSource string

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (s *webSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *webSession) GetImage(ctx context.Context, id ImageID) (ImageHandle, error) {
	if s.isClosed() {
		return nil, errors.New(errors.KindFetch, "session_closed", "session is closed")
	}

	resp, err := s.client.R().SetContext(ctx).Get(fmt.Sprintf(pathImage, url.PathEscape(id.String())))
	if err != nil {
		return nil, errors.Classify(errors.KindFetch, "transport", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errors.New(errors.KindNotFound, "image", "image %s not found", id)
	default:
		return nil, errors.New(errors.KindFetch, "metadata", "image %s metadata returned %d", id, resp.StatusCode())
	}

	var img imageResponse
	if err := sonic.Unmarshal(resp.Body(), &img); err != nil {
		return nil, errors.Classify(errors.KindFetch, "metadata", err)
	}

	px := img.Data.Pixels
	if px.SizeX <= 0 || px.SizeY <= 0 {
		return nil, errors.New(errors.KindFetch, "metadata", "image %s has invalid plane size %dx%d", id, px.SizeX, px.SizeY)
	}
	if s.planeSource == PlaneSourcePixelBuffer && !rawPixelTypes[px.Type.Value] {
		return nil, errors.New(errors.KindFetch, "pixel_type", "image %s has pixel type %q, only uint8 and uint16 fit the volume", id, px.Type.Value)
	}

	return &webImage{
		session:  s,
		id:       id,
		name:     img.Data.Name,
		width:    px.SizeX,
		height:   px.SizeY,
		channels: px.SizeC,
	}, nil
}

func (s *webSession) Ping(ctx context.Context) error {
	if s.isClosed() {
		return fmt.Errorf("session is closed")
	}
	resp, err := s.client.R().SetContext(ctx).Get(pathKeepalive)
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("keepalive returned %d", resp.StatusCode())
	}
	return nil
}

// Close logs out once. Logout failures are logged, not returned: the local
// session is released either way.
func (s *webSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		resp, err := s.client.R().SetContext(ctx).Post(pathLogout)
		if err != nil {
			slog.Warn("omero_web_logout_failed", "base_url", s.baseURL, "error", err)
			return
		}
		slog.Debug("omero_web_logout", "base_url", s.baseURL, "status", resp.StatusCode())
	})
	return nil
}

// rawPixelTypes are the OMERO pixel types a uint16 volume holds exactly.
var rawPixelTypes = map[string]bool{"uint8": true, "uint16": true}

type webImage struct {
	session  *webSession
	id       ImageID
	name     string
	width    int
	height   int
	channels int
}

func (i *webImage) Name() string { return i.name }

func (i *webImage) ChannelCount() int { return i.channels }

// Plane retrieves one channel as a TIFF and decodes it according to the
// session's plane source.
func (i *webImage) Plane(ctx context.Context, channel int) (*Plane, error) {
	if channel < 0 || channel >= i.channels {
		return nil, fmt.Errorf("channel %d out of range 0-%d", channel, i.channels-1)
	}
	if i.session.isClosed() {
		return nil, fmt.Errorf("session is closed")
	}

	req := i.session.client.R().
		SetContext(ctx).
		SetHeader("Accept", "image/tiff")

	var path string
	if i.session.planeSource == PlaneSourceRender {
		path = fmt.Sprintf(pathRender, url.PathEscape(i.id.String()))
		req.SetQueryParams(map[string]string{
			"c":      channelSelector(channel, i.channels),
			"m":      "g",
			"format": "tif",
		})
	} else {
		path = fmt.Sprintf(pathTile, url.PathEscape(i.id.String()), channel)
		req.SetQueryParam("format", "tif")
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d", path, resp.StatusCode())
	}

	decoded, err := tiff.Decode(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode plane")
	}

	var plane *Plane
	if i.session.planeSource == PlaneSourceRender {
		plane = renderedPlane(decoded)
	} else if plane, err = rawPlane(decoded); err != nil {
		return nil, err
	}

	if plane.Width != i.width || plane.Height != i.height {
		return nil, fmt.Errorf("plane is %dx%d, image metadata says %dx%d", plane.Width, plane.Height, i.width, i.height)
	}
	return plane, nil
}

// channelSelector activates only channel (0-based) using the webgateway
// "c" syntax, where a negative index disables a channel.
func channelSelector(channel, count int) string {
	parts := make([]string, count)
	for c := 0; c < count; c++ {
		if c == channel {
			parts[c] = strconv.Itoa(c + 1)
		} else {
			parts[c] = strconv.Itoa(-(c + 1))
		}
	}
	return strings.Join(parts, ",")
}

// rawPlane copies single-channel gray pixels without scaling. Any other
// color model means the server sent something other than raw data.
func rawPlane(img image.Image) (*Plane, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint16, w*h)

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pix[y*w+x] = src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pix[y*w+x] = uint16(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		return nil, fmt.Errorf("raw plane has color model %T, want 8 or 16-bit gray", img.ColorModel())
	}

	return &Plane{Width: w, Height: h, Pix: pix}, nil
}

// renderedPlane reduces every color model to its 8-bit gray value, so a
// gray TIFF and an RGB TIFF of the same rendering give the same plane.
func renderedPlane(img image.Image) *Plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]uint16, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = uint16(color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y)
		}
	}

	return &Plane{Width: w, Height: h, Pix: pix}
}
