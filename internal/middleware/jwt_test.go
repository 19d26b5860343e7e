package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/require"

    "github.com/slateai/access-control/internal/model"
    "github.com/slateai/access-control/internal/utils"
)

const testSecret = "middleware-test-secret"

func runChain(t *testing.T, authHeader string, mws ...echo.MiddlewareFunc) (int, echo.Context) {
    t.Helper()
    e := echo.New()
    req := httptest.NewRequest(http.MethodGet, "/", nil)
    if authHeader != "" {
        req.Header.Set("Authorization", authHeader)
    }
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)

    h := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
    for i := len(mws) - 1; i >= 0; i-- {
        h = mws[i](h)
    }
    require.NoError(t, h(c))
    return rec.Code, c
}

func TestJWTAuth_ValidToken(t *testing.T) {
    token, err := utils.NewSessionToken(testSecret, "u-1", "ann@x.com", model.RoleAdmin)
    require.NoError(t, err)

    code, c := runChain(t, "Bearer "+token, JWTAuth(testSecret))

    require.Equal(t, http.StatusOK, code)
    require.Equal(t, "u-1", c.Get("user_id"))
    require.Equal(t, "ann@x.com", c.Get("email"))
    require.Equal(t, model.RoleAdmin, c.Get("role"))
}

func TestJWTAuth_Rejections(t *testing.T) {
    wrong, err := utils.NewSessionToken("other-secret", "u-1", "ann@x.com", model.RoleUser)
    require.NoError(t, err)

    cases := []struct {
        name, header string
    }{
        {"missing header", ""},
        {"not bearer", "Basic abc"},
        {"garbage token", "Bearer not.a.jwt"},
        {"wrong secret", "Bearer " + wrong},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            code, _ := runChain(t, tc.header, JWTAuth(testSecret))
            require.Equal(t, http.StatusUnauthorized, code)
        })
    }
}

func TestRequireRole(t *testing.T) {
    adminToken, err := utils.NewSessionToken(testSecret, "u-1", "ann@x.com", model.RoleAdmin)
    require.NoError(t, err)
    userToken, err := utils.NewSessionToken(testSecret, "u-2", "bob@x.com", model.RoleUser)
    require.NoError(t, err)

    guard := RequireRole(model.RoleSystemAdmin, model.RoleAdmin)

    code, _ := runChain(t, "Bearer "+adminToken, JWTAuth(testSecret), guard)
    require.Equal(t, http.StatusOK, code)

    code, _ = runChain(t, "Bearer "+userToken, JWTAuth(testSecret), guard)
    require.Equal(t, http.StatusForbidden, code)

    // No JWTAuth in front: role claim absent entirely.
    code, _ = runChain(t, "", guard)
    require.Equal(t, http.StatusForbidden, code)
}
