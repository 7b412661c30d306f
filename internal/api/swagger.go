package api

import (
	_ "embed"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"promptlab/internal/auth"
)

//go:embed openapi.yaml
var openAPISpec string

// SpecHandler serves the OpenAPI document with {oktaIssuer} and {scopes}
// replaced, so the file itself never names a tenant.
func SpecHandler(oktaIssuer string) echo.HandlerFunc {
	spec := strings.ReplaceAll(openAPISpec, "{oktaIssuer}", oktaIssuer)
	lines := strings.Split(spec, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "{scopes}" {
			continue
		}
		indent := line[:strings.Index(line, "{")]
		scopes := make([]string, len(auth.AllScopes))
		for j, s := range auth.AllScopes {
			scopes[j] = indent + s + ": " + s
		}
		lines[i] = strings.Join(scopes, "\n")
	}
	body := []byte(strings.Join(lines, "\n"))
	return func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/yaml", body)
	}
}

// SwaggerHandler serves a Swagger UI page pointing at /openapi.yaml, set up
// for PKCE login with clientID.
func SwaggerHandler(clientID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		// r.URL.Scheme is only populated behind some proxies
		scheme := c.Scheme()
		oauth2Redirect := scheme + "://" + r.Host + "/docs/oauth2-redirect.html"

		html := strings.ReplaceAll(swaggerHTML, "${SPEC_URL}", "/openapi.yaml")
		html = strings.ReplaceAll(html, "${OAUTH2_REDIRECT}", oauth2Redirect)
		html = strings.ReplaceAll(html, "${CLIENT_ID}", clientID)
		html = strings.ReplaceAll(html, "${SCOPES}", strings.Join(auth.AllScopes, " "))
		return c.HTML(http.StatusOK, html)
	}
}

// OAuth2RedirectHandler serves the OAuth2 redirect page used by Swagger UI
func OAuth2RedirectHandler(c echo.Context) error {
	return c.HTML(http.StatusOK, oauthRedirectHTML)
}

const swaggerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <title>Prompt Lab API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist/swagger-ui-bundle.js"></script>
  <script>
  window.onload = function() {
    const ui = SwaggerUIBundle({
      url: "${SPEC_URL}",
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: "BaseLayout",
      oauth2RedirectUrl: "${OAUTH2_REDIRECT}",
    });
    window.ui = ui;

    // PKCE, so there is no client secret to collect
    ui.initOAuth({
      clientId: "${CLIENT_ID}",
      scopes: "${SCOPES}",
      usePkceWithAuthorizationCodeGrant: true,
    });
  }
  </script>
</body>
</html>`

const oauthRedirectHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"/><title>OAuth2 Redirect</title></head>
<body>
<script>
(function () {
  var oauth2 = window.opener && window.opener.swaggerUIRedirectOauth2;
  if (!oauth2) { return; }
  var qp = new URLSearchParams(window.location.search || window.location.hash.substring(1));
  if (qp.get("code") && qp.get("state") === oauth2.state) {
    delete oauth2.state;
    oauth2.auth.code = qp.get("code");
    oauth2.callback({auth: oauth2.auth, redirectUrl: oauth2.redirectUrl});
  } else {
    oauth2.errCb({
      authId: oauth2.auth.name,
      source: "auth",
      level: "error",
      message: qp.get("error_description") || "authorization failed or state mismatch"
    });
  }
  window.close();
})();
</script>
</body>
</html>`
