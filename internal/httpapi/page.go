package httpapi

import (
	"html"
	"net/http"

	"github.com/valyala/fasttemplate"
)

var resultPage = fasttemplate.New(`<!doctype html>
<html lang="no">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{title}} - Sameieportalen</title>
<style>
body { font-family: system-ui, sans-serif; background: #f5f5f5; margin: 0; }
main { max-width: 32rem; margin: 4rem auto; background: #fff; padding: 2rem; border-radius: 8px; }
h1 { font-size: 1.4rem; margin-top: 0; }
</style>
</head>
<body>
<main>
<h1>{{title}}</h1>
<p>{{message}}</p>
</main>
</body>
</html>
`, "{{", "}}")

func renderPage(w http.ResponseWriter, code int, title, message string) {
	body := resultPage.ExecuteString(map[string]interface{}{
		"title":   html.EscapeString(title),
		"message": html.EscapeString(message),
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
