package sandbox

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/evanw/esbuild/pkg/api"
)

// ContentSecurityPolicy must accompany every served frame document. It puts
// the document in an opaque origin with scripts enabled, so generated code
// cannot read the host's cookies or storage.
const ContentSecurityPolicy = "sandbox allow-scripts"

// ErrorMarker prefixes the console line a frame document logs when it
// reports an error.
const ErrorMarker = "__gameforge_error__"

// DocumentOptions configures a frame document.
type DocumentOptions struct {
	// ReportURL receives browser errors as {"key": ..., "error": ...}.
	ReportURL string
}

// kindFailed renders only the error of a frame that did not compile.
const kindFailed Kind = "failed"

type documentData struct {
	Title     string
	Kind      Kind
	Language  string
	Key       string
	ReportURL string
	Marker    string
	Code      string
	Markup    template.HTML
	Stdout    string
	Error     string
}

var documentTemplate = template.Must(template.New("frame").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<script src="https://cdn.tailwindcss.com"></script>
{{- if eq .Kind "react"}}
<script type="importmap">{"imports":{"react":"https://esm.sh/react@18.3.1","react/jsx-runtime":"https://esm.sh/react@18.3.1/jsx-runtime","react-dom/client":"https://esm.sh/react-dom@18.3.1/client"}}</script>
{{- end}}
<script>
(function () {
  var reportURL = {{.ReportURL}};
  var key = {{.Key}};
  var sent = false;
  window.__report = function (err) {
    var message = err && err.stack ? String(err.stack) : String(err);
    console.error({{.Marker}}, message);
    if (sent || !reportURL) return;
    sent = true;
    fetch(reportURL, { method: "POST", headers: { "Content-Type": "text/plain" }, body: JSON.stringify({ key: key, error: message }) });
  };
  window.addEventListener("error", function (e) { window.__report(e.error || e.message); });
  window.addEventListener("unhandledrejection", function (e) { window.__report(e.reason); });
})();
</script>
</head>
<body class="bg-gray-900 min-h-screen">
{{- if .Error}}
<pre class="m-4 p-4 rounded bg-red-950 text-red-200 whitespace-pre-wrap">{{.Error}}</pre>
{{- end}}
{{- if eq .Kind "react"}}
<div id="root">{{.Markup}}</div>
<script type="module">
const src = {{.Code}};
try {
  const React = await import("react");
  const { createRoot } = await import("react-dom/client");
  const mod = await import("data:text/javascript;charset=utf-8," + encodeURIComponent(src));
  createRoot(document.getElementById("root")).render(React.createElement(mod.default));
} catch (err) {
  window.__report(err);
}
</script>
{{- else if eq .Kind "script"}}
<div id="root"></div>
<script>
(function () {
  var src = {{.Code}};
  try { (0, eval)(src); } catch (err) { window.__report(err); }
})();
</script>
{{- else if eq .Kind "failed"}}
<div id="root"></div>
{{- else if eq .Kind "go"}}
<pre class="m-4 p-4 text-green-300 whitespace-pre-wrap">{{.Stdout}}</pre>
{{- else}}
<div class="m-8 text-gray-200">
<p class="text-xl font-bold">Cannot execute {{if .Language}}{{.Language}}{{else}}this{{end}} code.</p>
<p class="mt-2 text-gray-400">Previews support tsx, jsx, ts, js and go.</p>
</div>
{{- end}}
</body>
</html>
`))

// Document renders the standalone HTML document for a frame. React code is
// compiled to an ES module that loads React from a CDN.
func Document(f Frame, opts DocumentOptions) ([]byte, error) {
	data := documentData{
		Title:     "App",
		Kind:      f.Kind,
		Language:  f.Request.Language,
		Key:       f.Request.Key,
		ReportURL: opts.ReportURL,
		Marker:    ErrorMarker,
		Markup:    template.HTML(f.Markup),
		Stdout:    f.Stdout,
		Error:     f.Error,
	}
	if f.Request.Filename != "" {
		data.Title = f.Request.Filename
	}

	switch f.Kind {
	case KindReact:
		js, err := transform(f.Request.Code, f.Request.Filename, api.FormatESModule)
		if err != nil {
			data.Error = err.Error()
			data.Kind = kindFailed
			break
		}
		data.Code = js
	case KindScript:
		data.Code = f.Request.Code
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering frame document: %w", err)
	}
	return buf.Bytes(), nil
}
