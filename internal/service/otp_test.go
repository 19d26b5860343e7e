package service

import (
    "context"
    "database/sql"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "github.com/slateai/access-control/internal/audit"
    "github.com/slateai/access-control/internal/model"
    "github.com/slateai/access-control/internal/repository"
    "github.com/slateai/access-control/internal/utils"
)

// ----- in-memory fakes -----

type fakeUserStore struct {
    mu   sync.Mutex
    rows map[string]model.User // keyed by email
    seq  int
}

func newFakeUserStore() *fakeUserStore {
    return &fakeUserStore{rows: make(map[string]model.User)}
}

func (f *fakeUserStore) Create(_ context.Context, u *model.User) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if _, ok := f.rows[u.Email]; ok {
        return repository.ErrEmailExists
    }
    f.seq++
    if u.ID == "" {
        u.ID = "user-" + string(rune('0'+f.seq))
    }
    f.rows[u.Email] = *u
    return nil
}

func (f *fakeUserStore) GetActiveByEmail(_ context.Context, email string) (model.User, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    u, ok := f.rows[email]
    if !ok || u.IsDeleted {
        return model.User{}, sql.ErrNoRows
    }
    return u, nil
}

func (f *fakeUserStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    for email, u := range f.rows {
        if u.ID == id {
            u.LastLoginAt = &at
            f.rows[email] = u
            return nil
        }
    }
    return sql.ErrNoRows
}

type fakeOTPStore struct {
    mu   sync.Mutex
    rows map[string]model.OTPRequest
}

func newFakeOTPStore() *fakeOTPStore {
    return &fakeOTPStore{rows: make(map[string]model.OTPRequest)}
}

func (f *fakeOTPStore) Get(_ context.Context, email string) (model.OTPRequest, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    r, ok := f.rows[email]
    if !ok {
        return model.OTPRequest{}, sql.ErrNoRows
    }
    return r, nil
}

func (f *fakeOTPStore) Replace(_ context.Context, req *model.OTPRequest) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if req.ID == "" {
        req.ID = "otp-" + req.Email
    }
    f.rows[req.Email] = *req
    return nil
}

func (f *fakeOTPStore) Delete(_ context.Context, email string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    delete(f.rows, email)
    return nil
}

// FailAttempt mirrors the MySQL implementation: expiry, hash identity
// and the remaining count are all checked under one lock with the
// decrement, so racing callers cannot both spend the last attempt and
// an obsolete guess cannot debit a replaced request.
func (f *fakeOTPStore) FailAttempt(_ context.Context, email, otpHash string, now time.Time) (int, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    r, ok := f.rows[email]
    if !ok {
        return 0, sql.ErrNoRows
    }
    if now.After(r.ExpiresAt) {
        return 0, repository.ErrRequestExpired
    }
    if r.OTPHash != otpHash {
        return r.AttemptsLeft, repository.ErrStaleRequest
    }
    if r.AttemptsLeft <= 0 {
        return 0, repository.ErrNoAttempts
    }
    r.AttemptsLeft--
    f.rows[email] = r
    return r.AttemptsLeft, nil
}

func (f *fakeOTPStore) ResetForResend(_ context.Context, email, otpHash string, resendAfter time.Time) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    r, ok := f.rows[email]
    if !ok {
        return sql.ErrNoRows
    }
    r.OTPHash = otpHash
    r.AttemptsLeft = model.OTPMaxAttempts
    r.ResendAfter = resendAfter
    f.rows[email] = r
    return nil
}

type fakeMailer struct {
    mu       sync.Mutex
    sent     map[string]string // email -> last OTP
    failNext bool
}

func newFakeMailer() *fakeMailer { return &fakeMailer{sent: make(map[string]string)} }

func (f *fakeMailer) SendOTP(_ context.Context, to, _ string, otp string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.failNext {
        f.failNext = false
        return errors.New("smtp upstream down")
    }
    f.sent[to] = otp
    return nil
}

func (f *fakeMailer) lastOTP(email string) string {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.sent[email]
}

type fakeRecorder struct {
    mu      sync.Mutex
    entries []audit.Entry
}

func (f *fakeRecorder) Record(_ context.Context, e audit.Entry) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.entries = append(f.entries, e)
}

func (f *fakeRecorder) actions() []string {
    f.mu.Lock()
    defer f.mu.Unlock()
    out := make([]string, len(f.entries))
    for i, e := range f.entries {
        out[i] = e.Action
    }
    return out
}

// ----- fixture -----

type fixture struct {
    users *fakeUserStore
    otps  *fakeOTPStore
    mail  *fakeMailer
    rec   *fakeRecorder
    svc   *Auth
    clock time.Time
}

func newFixture() *fixture {
    fx := &fixture{
        users: newFakeUserStore(),
        otps:  newFakeOTPStore(),
        mail:  newFakeMailer(),
        rec:   &fakeRecorder{},
        clock: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
    }
    fx.svc = NewAuth(fx.users, fx.otps, fx.mail, fx.rec)
    fx.svc.now = func() time.Time { return fx.clock }
    return fx
}

func (fx *fixture) advance(d time.Duration) { fx.clock = fx.clock.Add(d) }

// burnAttempt spends one verify attempt directly against the store.
func (fx *fixture) burnAttempt(t *testing.T, email string) {
    t.Helper()
    req, err := fx.otps.Get(context.Background(), email)
    require.NoError(t, err)
    _, err = fx.otps.FailAttempt(context.Background(), email, req.OTPHash, fx.clock)
    require.NoError(t, err)
}

var testMeta = Meta{IP: "203.0.113.9", UserAgent: "go-test"}

const (
    annName  = "Ann"
    annEmail = "ann@x.com"
    annPass  = "password123"
)

func (fx *fixture) issueAnn(t *testing.T) string {
    t.Helper()
    cooldown, err := fx.svc.Issue(context.Background(), testMeta, annName, annEmail, annPass)
    require.NoError(t, err)
    require.Equal(t, 60, cooldown)
    return fx.mail.lastOTP(annEmail)
}

func mustHash(t *testing.T, secret string) string {
    t.Helper()
    h, err := utils.HashSecret(secret)
    require.NoError(t, err)
    return h
}

// wrongCode returns a six digit code guaranteed to differ from otp.
func wrongCode(otp string) string {
    if otp == "000000" {
        return "000001"
    }
    return "000000"
}

// ----- Issue -----

func TestIssue_Validation(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    ctx := context.Background()

    cases := []struct {
        name, userName, email, password string
        wantErr                         error
    }{
        {"missing name", "", annEmail, annPass, ErrMissingFields},
        {"missing email", annName, "", annPass, ErrMissingFields},
        {"missing password", annName, annEmail, "", ErrMissingFields},
        {"short password", annName, annEmail, "short12", ErrPasswordTooShort},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            _, err := fx.svc.Issue(ctx, testMeta, tc.userName, tc.email, tc.password)
            require.ErrorIs(t, err, tc.wantErr)
        })
    }
}

func TestIssue_StoresPendingRequest(t *testing.T) {
    t.Parallel()
    fx := newFixture()

    otp := fx.issueAnn(t)
    require.Len(t, otp, 6)

    req, err := fx.otps.Get(context.Background(), annEmail)
    require.NoError(t, err)
    require.Equal(t, model.OTPMaxAttempts, req.AttemptsLeft)
    require.Equal(t, fx.clock.Add(model.OTPExpiry), req.ExpiresAt)
    require.Equal(t, fx.clock.Add(model.OTPResendCooldown), req.ResendAfter)
    require.NotEqual(t, annPass, req.PasswordHash)
    require.NotEqual(t, otp, req.OTPHash)
    require.Contains(t, fx.rec.actions(), "signup_initiated")
}

func TestIssue_RejectsActiveAccount(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    require.NoError(t, fx.users.Create(context.Background(), &model.User{
        Email: annEmail, Name: annName, Status: model.StatusActive,
    }))

    _, err := fx.svc.Issue(context.Background(), testMeta, annName, annEmail, annPass)
    require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestIssue_MailFailureLeavesNoRequest(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    fx.mail.failNext = true

    _, err := fx.svc.Issue(context.Background(), testMeta, annName, annEmail, annPass)
    require.Error(t, err)

    _, err = fx.otps.Get(context.Background(), annEmail)
    require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestIssue_ReplacesPriorRequest(t *testing.T) {
    t.Parallel()
    fx := newFixture()

    fx.issueAnn(t)
    first, err := fx.otps.Get(context.Background(), annEmail)
    require.NoError(t, err)

    // Burn some attempts, then sign up again.
    fx.burnAttempt(t, annEmail)
    fx.advance(2 * time.Minute)
    fx.issueAnn(t)

    second, err := fx.otps.Get(context.Background(), annEmail)
    require.NoError(t, err)
    require.NotEqual(t, first.OTPHash, second.OTPHash)
    require.Equal(t, model.OTPMaxAttempts, second.AttemptsLeft)
    require.Equal(t, fx.clock.Add(model.OTPExpiry), second.ExpiresAt)
}

// ----- Resend -----

func TestResend_NoPendingRequest(t *testing.T) {
    t.Parallel()
    fx := newFixture()

    _, err := fx.svc.Resend(context.Background(), testMeta, annEmail)
    require.ErrorIs(t, err, ErrNoRequest)
}

func TestResend_WithinCooldown(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    fx.issueAnn(t)

    fx.advance(30 * time.Second)
    _, err := fx.svc.Resend(context.Background(), testMeta, annEmail)

    var limited *RateLimitedError
    require.ErrorAs(t, err, &limited)
    require.Equal(t, 30, limited.RetryAfter)
}

func TestResend_ExpiredDeletesRow(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    fx.issueAnn(t)

    fx.advance(model.OTPExpiry + time.Second)
    _, err := fx.svc.Resend(context.Background(), testMeta, annEmail)
    require.ErrorIs(t, err, ErrExpired)

    _, err = fx.otps.Get(context.Background(), annEmail)
    require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestResend_ResetsBudgetAndCooldown(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    firstOTP := fx.issueAnn(t)

    // Two failed guesses, then a resend after the cooldown.
    fx.burnAttempt(t, annEmail)
    fx.burnAttempt(t, annEmail)
    fx.advance(61 * time.Second)

    cooldown, err := fx.svc.Resend(context.Background(), testMeta, annEmail)
    require.NoError(t, err)
    require.Equal(t, 60, cooldown)

    req, err := fx.otps.Get(context.Background(), annEmail)
    require.NoError(t, err)
    require.Equal(t, model.OTPMaxAttempts, req.AttemptsLeft)
    require.Equal(t, fx.clock.Add(model.OTPResendCooldown), req.ResendAfter)
    require.NotEqual(t, firstOTP, fx.mail.lastOTP(annEmail))
}

// ----- Verify -----

func TestVerify_SuccessCreatesAccount(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    otp := fx.issueAnn(t)

    user, err := fx.svc.Verify(context.Background(), testMeta, annEmail, otp)
    require.NoError(t, err)
    require.Equal(t, model.RoleUser, user.Role)
    require.Equal(t, model.StatusActive, user.Status)
    require.Equal(t, annEmail, user.Email)
    require.NotNil(t, user.LastLoginAt)
    require.NotEmpty(t, user.ID)

    // Request consumed.
    _, err = fx.otps.Get(context.Background(), annEmail)
    require.ErrorIs(t, err, sql.ErrNoRows)
    require.Contains(t, fx.rec.actions(), "user_verified")
}

func TestVerify_WrongCodeBurnsAttempts(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    otp := fx.issueAnn(t)
    bad := wrongCode(otp)

    for want := 4; want >= 0; want-- {
        _, err := fx.svc.Verify(context.Background(), testMeta, annEmail, bad)
        var invalid *InvalidOTPError
        require.ErrorAs(t, err, &invalid)
        require.Equal(t, want, invalid.AttemptsLeft)
    }

    // Budget exhausted: even the correct code now reads as locked and
    // does not decrement further.
    _, err := fx.svc.Verify(context.Background(), testMeta, annEmail, otp)
    require.ErrorIs(t, err, ErrLocked)

    req, err := fx.otps.Get(context.Background(), annEmail)
    require.NoError(t, err)
    require.Equal(t, 0, req.AttemptsLeft)
}

func TestVerify_ExpiredDeletesRow(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    otp := fx.issueAnn(t)

    fx.advance(model.OTPExpiry + time.Second)
    _, err := fx.svc.Verify(context.Background(), testMeta, annEmail, otp)
    require.ErrorIs(t, err, ErrExpired)

    _, err = fx.otps.Get(context.Background(), annEmail)
    require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestVerify_ExpiryPrecedesLock(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    otp := fx.issueAnn(t)

    // Exhaust the budget, then let the request lapse: the expired
    // verdict wins over the locked one.
    bad := wrongCode(otp)
    for i := 0; i < model.OTPMaxAttempts; i++ {
        _, _ = fx.svc.Verify(context.Background(), testMeta, annEmail, bad)
    }
    fx.advance(model.OTPExpiry + time.Second)

    _, err := fx.svc.Verify(context.Background(), testMeta, annEmail, otp)
    require.ErrorIs(t, err, ErrExpired)
}

func TestVerify_MissingRequest(t *testing.T) {
    t.Parallel()
    fx := newFixture()

    _, err := fx.svc.Verify(context.Background(), testMeta, annEmail, "123456")
    require.ErrorIs(t, err, ErrNoRequest)
}

// staleGetOTPStore hands out one stale snapshot on the first Get,
// simulating a resend landing between a verify's read and its locked
// decrement.
type staleGetOTPStore struct {
    *fakeOTPStore
    stale *model.OTPRequest
}

func (s *staleGetOTPStore) Get(ctx context.Context, email string) (model.OTPRequest, error) {
    if s.stale != nil {
        r := *s.stale
        s.stale = nil
        return r, nil
    }
    return s.fakeOTPStore.Get(ctx, email)
}

func TestVerify_ResendRaceKeepsFreshBudget(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    ctx := context.Background()

    oldOTP := fx.issueAnn(t)
    snapshot, err := fx.otps.Get(ctx, annEmail)
    require.NoError(t, err)

    // The resend swaps in a new code and restores the full budget.
    fx.advance(61 * time.Second)
    _, err = fx.svc.Resend(ctx, testMeta, annEmail)
    require.NoError(t, err)

    // Replay a verify that read the row before the resend committed: a
    // wrong guess checked against the old hash must not spend any of
    // the fresh attempts.
    fx.svc.OTPs = &staleGetOTPStore{fakeOTPStore: fx.otps, stale: &snapshot}

    _, err = fx.svc.Verify(ctx, testMeta, annEmail, wrongCode(oldOTP))
    var invalid *InvalidOTPError
    require.ErrorAs(t, err, &invalid)
    require.Equal(t, model.OTPMaxAttempts, invalid.AttemptsLeft)

    req, err := fx.otps.Get(ctx, annEmail)
    require.NoError(t, err)
    require.Equal(t, model.OTPMaxAttempts, req.AttemptsLeft)
}

func TestVerify_ExpiryRaceReportsExpired(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    ctx := context.Background()

    otp := fx.issueAnn(t)

    // Hand Verify a snapshot that still looks live while the clock has
    // already passed the stored expiry: the locked decrement must see
    // the lapse and refuse to burn an attempt.
    snapshot, err := fx.otps.Get(ctx, annEmail)
    require.NoError(t, err)
    snapshot.ExpiresAt = fx.clock.Add(model.OTPExpiry + time.Hour)
    fx.advance(model.OTPExpiry + time.Second)
    fx.svc.OTPs = &staleGetOTPStore{fakeOTPStore: fx.otps, stale: &snapshot}

    _, err = fx.svc.Verify(ctx, testMeta, annEmail, wrongCode(otp))
    require.ErrorIs(t, err, ErrExpired)

    // The lapsed row is cleaned up, same as the ordinary expiry path.
    _, err = fx.otps.Get(ctx, annEmail)
    require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestVerify_ConcurrentGuessesNeverGoNegative(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    otp := fx.issueAnn(t)
    bad := wrongCode(otp)

    // Spend down to the final attempt.
    for i := 0; i < model.OTPMaxAttempts-1; i++ {
        _, _ = fx.svc.Verify(context.Background(), testMeta, annEmail, bad)
    }

    errs := make(chan error, 2)
    var wg sync.WaitGroup
    for i := 0; i < 2; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, err := fx.svc.Verify(context.Background(), testMeta, annEmail, bad)
            errs <- err
        }()
    }
    wg.Wait()
    close(errs)

    var invalidCount, lockedCount int
    for err := range errs {
        var invalid *InvalidOTPError
        switch {
        case errors.As(err, &invalid):
            require.Equal(t, 0, invalid.AttemptsLeft)
            invalidCount++
        case errors.Is(err, ErrLocked):
            lockedCount++
        default:
            t.Fatalf("unexpected error: %v", err)
        }
    }
    // Exactly one guess spends the final attempt; the other observes
    // the locked state. The counter never dips below zero.
    require.Equal(t, 1, invalidCount)
    require.Equal(t, 1, lockedCount)

    req, err := fx.otps.Get(context.Background(), annEmail)
    require.NoError(t, err)
    require.Equal(t, 0, req.AttemptsLeft)
}

// ----- Login -----

func TestLogin_Success(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    otp := fx.issueAnn(t)
    _, err := fx.svc.Verify(context.Background(), testMeta, annEmail, otp)
    require.NoError(t, err)

    fx.advance(time.Hour)
    user, err := fx.svc.Login(context.Background(), testMeta, annEmail, annPass)
    require.NoError(t, err)
    require.Equal(t, annEmail, user.Email)
    require.NotNil(t, user.LastLoginAt)
    require.Equal(t, fx.clock, *user.LastLoginAt)
    require.Contains(t, fx.rec.actions(), "login_success")
}

func TestLogin_Failures(t *testing.T) {
    t.Parallel()
    fx := newFixture()
    ctx := context.Background()

    require.NoError(t, fx.users.Create(ctx, &model.User{
        Email: "active@x.com", Status: model.StatusActive, PasswordHash: mustHash(t, annPass),
    }))
    require.NoError(t, fx.users.Create(ctx, &model.User{
        Email: "inactive@x.com", Status: model.StatusInactive, PasswordHash: mustHash(t, annPass),
    }))
    require.NoError(t, fx.users.Create(ctx, &model.User{
        Email: "sso@x.com", Status: model.StatusActive,
    }))

    cases := []struct {
        name, email, password string
        wantErr               error
    }{
        {"unknown email", "nobody@x.com", annPass, ErrInvalidCreds},
        {"wrong password", "active@x.com", "password999", ErrInvalidCreds},
        {"inactive account", "inactive@x.com", annPass, ErrAccountInactive},
        {"sso only", "sso@x.com", annPass, ErrSSOOnly},
        {"missing password", "active@x.com", "", ErrMissingFields},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            _, err := fx.svc.Login(ctx, testMeta, tc.email, tc.password)
            require.ErrorIs(t, err, tc.wantErr)
        })
    }
}
