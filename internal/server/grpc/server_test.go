package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/pxauth/internal/common"
	"github.com/dmitrijs2005/pxauth/internal/logging"
	"github.com/dmitrijs2005/pxauth/internal/server/models"
	"github.com/dmitrijs2005/pxauth/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

// ---- fake service ----

type fakeAuth struct {
	mu            sync.Mutex
	lastDevice    models.DeviceInfo
	lastAccountID int64
	lastToken     []byte

	err        error
	resolveErr error
	confirm    services.ConfirmResponse
	account    *models.Account
}

func (f *fakeAuth) record(accountID int64, device models.DeviceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAccountID = accountID
	f.lastDevice = device
}

func (f *fakeAuth) device() models.DeviceInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDevice
}

func (f *fakeAuth) accountID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAccountID
}

func (f *fakeAuth) token() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastToken
}

func (f *fakeAuth) SignUp(ctx context.Context, req services.SignUpRequest, device models.DeviceInfo) (*services.SignUpResponse, error) {
	f.record(0, device)
	if f.err != nil {
		return nil, f.err
	}
	return &services.SignUpResponse{AccountID: 7, CodeToken: "00ff"}, nil
}

func (f *fakeAuth) SignIn(ctx context.Context, req services.SignInRequest, device models.DeviceInfo) (*services.SignInResponse, error) {
	f.record(0, device)
	if f.err != nil {
		return nil, f.err
	}
	return &services.SignInResponse{AccountID: 7, SessionToken: "abcd", Name: "Alice Liddell", Status: models.StatusNormal}, nil
}

func (f *fakeAuth) SignInByEmail(ctx context.Context, req services.SignInRequest, device models.DeviceInfo) (*services.EmailChallengeResponse, error) {
	f.record(0, device)
	if f.err != nil {
		return nil, f.err
	}
	return &services.EmailChallengeResponse{AccountID: 7, CodeToken: "beef"}, nil
}

func (f *fakeAuth) ConfirmCode(ctx context.Context, accountID int64, req services.ConfirmCodeRequest, device models.DeviceInfo) (services.ConfirmResponse, error) {
	f.record(accountID, device)
	return f.confirm, f.err
}

func (f *fakeAuth) ConfirmToken(ctx context.Context, accountID int64, req services.ConfirmTokenRequest, device models.DeviceInfo) (services.ConfirmResponse, error) {
	f.record(accountID, device)
	return f.confirm, f.err
}

func (f *fakeAuth) ResolveSession(ctx context.Context, accountID int64, token []byte) (*models.Account, error) {
	f.mu.Lock()
	f.lastAccountID, f.lastToken = accountID, token
	f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.account, nil
}

func (f *fakeAuth) Status(ctx context.Context, a *models.Account) *services.StatusResponse {
	return &services.StatusResponse{Name: a.Name, Email: a.Email, Status: a.Status}
}

// ---- helpers ----

func startServer(t *testing.T, auth AuthAPI) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer("bufnet", nopLogger{}, auth)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent("pxauth-web/2.1"),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return NewClient(conn)
}

func requireStatus(t *testing.T, err error, code codes.Code, kind common.Kind) *status.Status {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "not a status: %v", err)
	assert.Equal(t, code, st.Code(), st.Message())
	assert.Equal(t, kind, KindFromError(err))
	return st
}

// ---- tests ----

func TestSignUp_PassesDeviceAndEchoesRequestID(t *testing.T) {
	auth := &fakeAuth{}
	c := startServer(t, auth)

	var header metadata.MD
	resp, err := c.SignUp(context.Background(), services.SignUpRequest{Name: "Alice Liddell"}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, int64(7), resp.AccountID)
	assert.Equal(t, "00ff", resp.CodeToken)

	assert.Equal(t, "pxauth-web/2.1", auth.device().DeviceString)
	require.Len(t, header.Get(requestIDHeader), 1)
	assert.NotEmpty(t, header.Get(requestIDHeader)[0])
}

func TestErrorsAreMappedToStatusCodes(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		code    codes.Code
		kind    common.Kind
		message string
	}{
		{"credentials", common.NewError(common.KindInvalidEmailOrPassword), codes.Unauthenticated, common.KindInvalidEmailOrPassword, "Invalid email or password"},
		{"validation", common.InvalidInput("email: Invalid email"), codes.InvalidArgument, common.KindInvalidInput, "email: Invalid email"},
		{"tfa", common.NewError(common.KindTFARequired), codes.Unauthenticated, common.KindTFARequired, "TFARequired"},
		{"tfa email", common.NewError(common.KindTFARequiredOverEmail), codes.Unauthenticated, common.KindTFARequiredOverEmail, "TFARequiredOverEmail"},
		{"taken", common.NewError(common.KindEmailAlreadyExists), codes.AlreadyExists, common.KindEmailAlreadyExists, "Email already exists"},
		{"database", common.DatabaseError("Failed to insert user", errors.New(`pq: relation "users" does not exist`)), codes.Internal, common.KindDatabaseError, "internal error"},
		{"foreign", errors.New("driver exploded"), codes.Internal, common.KindDatabaseError, "internal error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := startServer(t, &fakeAuth{err: tc.err})
			_, err := c.SignIn(context.Background(), services.SignInRequest{Email: "a@example.com"})
			st := requireStatus(t, err, tc.code, tc.kind)
			assert.Equal(t, tc.message, st.Message())
		})
	}
}

func TestConfirmCode(t *testing.T) {
	session := services.ConfirmedSession{AccountID: 7, SessionToken: "abcd", Name: "Alice Liddell", Email: "a@example.com", Status: models.StatusNormal, RedirectURL: "https://app.example.com"}

	t.Run("sign up variant", func(t *testing.T) {
		auth := &fakeAuth{confirm: services.SignUpConfirmed{ConfirmedSession: session}}
		c := startServer(t, auth)

		reply, err := c.ConfirmCode(WithAccount(context.Background(), 7, ""), services.ConfirmCodeRequest{Action: "Signup", CodeToken: "00ff", Code: "1234"})
		require.NoError(t, err)
		assert.Equal(t, "SignUp", reply.Type)
		assert.Equal(t, session, reply.ConfirmedSession)
		assert.Equal(t, int64(7), auth.accountID())
	})

	t.Run("sign in variant by token", func(t *testing.T) {
		auth := &fakeAuth{confirm: services.SignInConfirmed{ConfirmedSession: session}}
		c := startServer(t, auth)

		reply, err := c.ConfirmToken(WithAccount(context.Background(), 7, ""), services.ConfirmTokenRequest{Action: "Signin", Token: "00ff"})
		require.NoError(t, err)
		assert.Equal(t, "SignIn", reply.Type)
	})

	t.Run("missing account id", func(t *testing.T) {
		c := startServer(t, &fakeAuth{})
		_, err := c.ConfirmCode(context.Background(), services.ConfirmCodeRequest{})
		requireStatus(t, err, codes.Unauthenticated, common.KindUnauthorized)
	})

	t.Run("malformed account id", func(t *testing.T) {
		c := startServer(t, &fakeAuth{})
		ctx := metadata.AppendToOutgoingContext(context.Background(), common.UserIDHeaderName, "abc")
		_, err := c.ConfirmCode(ctx, services.ConfirmCodeRequest{})
		requireStatus(t, err, codes.InvalidArgument, common.KindBadRequest)
	})

	t.Run("expired", func(t *testing.T) {
		c := startServer(t, &fakeAuth{err: common.NewError(common.KindConfirmationExpired)})
		_, err := c.ConfirmCode(WithAccount(context.Background(), 7, ""), services.ConfirmCodeRequest{})
		requireStatus(t, err, codes.Unauthenticated, common.KindConfirmationExpired)
	})
}

func TestStatus_RequiresSession(t *testing.T) {
	account := &models.Account{ID: 7, Name: "Alice Liddell", Email: "a@example.com", Status: models.StatusAdmin}

	t.Run("ok", func(t *testing.T) {
		auth := &fakeAuth{account: account}
		c := startServer(t, auth)

		resp, err := c.Status(WithAccount(context.Background(), 7, "0a0b"))
		require.NoError(t, err)
		assert.Equal(t, &services.StatusResponse{Name: "Alice Liddell", Email: "a@example.com", Status: models.StatusAdmin}, resp)
		assert.Equal(t, []byte{0x0a, 0x0b}, auth.token())
	})

	t.Run("missing token", func(t *testing.T) {
		c := startServer(t, &fakeAuth{account: account})
		_, err := c.Status(WithAccount(context.Background(), 7, ""))
		requireStatus(t, err, codes.Unauthenticated, common.KindUnauthorized)
	})

	t.Run("token not hex", func(t *testing.T) {
		c := startServer(t, &fakeAuth{account: account})
		_, err := c.Status(WithAccount(context.Background(), 7, "zz"))
		requireStatus(t, err, codes.Unauthenticated, common.KindUnauthorized)
	})

	t.Run("banned", func(t *testing.T) {
		c := startServer(t, &fakeAuth{resolveErr: common.NewError(common.KindUserBanned)})
		_, err := c.Status(WithAccount(context.Background(), 7, "0a0b"))
		requireStatus(t, err, codes.Unauthenticated, common.KindUserBanned)
	})
}

func TestDeviceFromContext(t *testing.T) {
	md := metadata.Pairs(userAgentHeader, "Firefox/128.0 grpc-go/1.75.1", forwardedForHeader, "203.0.113.9, 10.0.0.1")

	ctx := metadata.NewIncomingContext(context.Background(), md)
	d := deviceFromContext(ctx)
	assert.Equal(t, "Firefox/128.0", d.DeviceString)
	require.NotNil(t, d.IPAddress)
	assert.Equal(t, "203.0.113.9", *d.IPAddress)

	ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("::1"), Port: 4242}})
	d = deviceFromContext(ctx)
	assert.Equal(t, "::1", *d.IPAddress)

	d = deviceFromContext(context.Background())
	assert.Equal(t, models.UnknownDevice, d.DeviceString)
	assert.Nil(t, d.IPAddress)
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", nopLogger{}, &fakeAuth{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", nopLogger{}, &fakeAuth{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}
