package peerauth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

// Claims is the subset of a peer bearer token's claims this validator
// relies on: subject carries the peer id (spec.md §4.5/§4.3: "an
// authenticated bidirectional stream").
type Claims struct {
	jwt.RegisteredClaims
}

// Validator parses and verifies RS256 peer bearer tokens against a
// KeySource, checking issuer/audience. Issuer is the primary issuer
// (spec.md §4.5's issuer_remote_url, trailing slash trimmed); IssuerFallback
// is the dev-mode issuer (issuer_url) retried only when the primary
// validation's sole failure was an issuer mismatch, for deployments where
// CARL is reached by peers and by the identity provider under different
// hostnames.
type Validator struct {
	Keys           *KeySource
	Issuer         string
	IssuerFallback string
	Audience       string
}

// Authenticate validates token and returns the peer id carried in its
// subject claim.
func (v *Validator) Authenticate(ctx context.Context, token string) (model.PeerId, error) {
	claims, err := v.parse(ctx, token)
	if err != nil {
		return model.PeerId{}, err
	}
	return model.ParsePeerId(claims.Subject)
}

// AuthenticateAdmin validates an administrative bearer token (CARL's HTTP
// façade, spec.md §6: "every request carries a bearer token validated per
// §4.5") the same way as a peer stream token, but without requiring the
// subject claim to parse as a PeerId — admin callers are human operators
// or CLEO, not peers.
func (v *Validator) AuthenticateAdmin(ctx context.Context, token string) error {
	_, err := v.parse(ctx, token)
	return err
}

// parse validates token against Issuer, and — only if that attempt's sole
// failure was an issuer mismatch (InvalidIssuer) and IssuerFallback is
// configured — retries once against IssuerFallback, per spec.md §4.5's
// dev-mode fallback.
func (v *Validator) parse(ctx context.Context, token string) (*Claims, error) {
	claims, err := v.parseWithIssuer(ctx, token, strings.TrimSuffix(v.Issuer, "/"))
	if err == nil {
		return claims, nil
	}
	if v.IssuerFallback == "" || !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
		return nil, fmt.Errorf("peerauth: invalid token: %w", err)
	}
	claims, fallbackErr := v.parseWithIssuer(ctx, token, strings.TrimSuffix(v.IssuerFallback, "/"))
	if fallbackErr != nil {
		return nil, fmt.Errorf("peerauth: invalid token: %w", fallbackErr)
	}
	return claims, nil
}

func (v *Validator) parseWithIssuer(ctx context.Context, token, issuer string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		alg, ok := t.Method.(*jwt.SigningMethodRSA)
		if !ok || alg.Name != "RS256" {
			return nil, fmt.Errorf("peerauth: unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("peerauth: token header missing kid")
		}
		return v.Keys.Key(ctx, kid)
	}, jwt.WithIssuer(issuer), jwt.WithAudience(v.Audience))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token not valid")
	}
	return &claims, nil
}

type contextKey int

const peerIdKey contextKey = 0

// PeerIdFromContext retrieves the peer id injected by StreamServerInterceptor.
func PeerIdFromContext(ctx context.Context) (model.PeerId, bool) {
	id, ok := ctx.Value(peerIdKey).(model.PeerId)
	return id, ok
}

// ContextWithPeerId returns a copy of ctx carrying id, retrievable via
// PeerIdFromContext. Exported so tests of stream handlers downstream of
// StreamServerInterceptor (internal/broker) can construct an authenticated
// context without standing up a real TLS/JWT handshake.
func ContextWithPeerId(ctx context.Context, id model.PeerId) context.Context {
	return context.WithValue(ctx, peerIdKey, id)
}

// StreamServerInterceptor extracts the bearer token from incoming stream
// metadata, validates it, and makes the resulting PeerId available via
// PeerIdFromContext to the wrapped handler.
func (v *Validator) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		md, ok := metadata.FromIncomingContext(ss.Context())
		if !ok {
			return status.Error(codes.Unauthenticated, "peerauth: missing metadata")
		}
		token := bearerToken(md)
		if token == "" {
			return status.Error(codes.Unauthenticated, "peerauth: missing bearer token")
		}
		peerId, err := v.Authenticate(ss.Context(), token)
		if err != nil {
			return status.Errorf(codes.Unauthenticated, "peerauth: %v", err)
		}
		wrapped := &authenticatedStream{ServerStream: ss, ctx: context.WithValue(ss.Context(), peerIdKey, peerId)}
		return handler(srv, wrapped)
	}
}

func bearerToken(md metadata.MD) string {
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	const prefix = "Bearer "
	if strings.HasPrefix(vals[0], prefix) {
		return strings.TrimPrefix(vals[0], prefix)
	}
	return vals[0]
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

// MTLSConfig loads a PEM-configured CA plus an optional client/server
// identity, reused for both the inbound broker listener and outbound
// telemetry/OIDC HTTP clients (spec.md §4.5).
type MTLSConfig struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

// TLSConfig builds a *tls.Config from PEM files on disk.
func (c MTLSConfig) TLSConfig() (*tls.Config, error) {
	pool := x509.NewCertPool()
	caPEM, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("peerauth: read CA file: %w", err)
	}
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("peerauth: no certificates parsed from %s", c.CAFile)
	}
	cfg := &tls.Config{RootCAs: pool, ClientCAs: pool}
	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("peerauth: load key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return cfg, nil
}

// ServerCredentials builds grpc.ServerOption-ready TransportCredentials.
func (c MTLSConfig) ServerCredentials() (credentials.TransportCredentials, error) {
	cfg, err := c.TLSConfig()
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(cfg), nil
}
