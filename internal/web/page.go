package web

import "html/template"

const pageTemplate = "index.html"

var indexTemplate = template.Must(template.New(pageTemplate).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>PaaS Cluster Test App</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; background-color: #f5f5f5; }
        .container { background-color: white; padding: 30px; border-radius: 10px; box-shadow: 0 2px 5px rgba(0,0,0,0.1); }
        h1 { color: #333; }
        .section { margin: 20px 0; padding: 15px; background-color: #f9f9f9; border-left: 4px solid #4CAF50; }
        .section.error { border-left-color: #e53935; }
        .label { font-weight: bold; color: #666; }
        .value { color: #333; margin-top: 5px; }
        pre { background-color: #eee; padding: 10px; border-radius: 5px; overflow-x: auto; }
        input[type=text] { width: 100%; padding: 8px; box-sizing: border-box; }
        button { margin-top: 10px; padding: 8px 16px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>PaaS Cluster Test Application</h1>

        <div class="section">
            <div class="label">Environment Variable (TEST_ENV_VAR):</div>
            <div class="value">{{ .EnvValue }}</div>
        </div>

        <div class="section{{ if .DataError }} error{{ end }}">
            <div class="label">Persistent Volume Data:</div>
            <div class="value">
                <pre>{{ .Data }}</pre>
            </div>
        </div>

        <div class="section">
            <div class="label">Data File Location:</div>
            <div class="value">{{ .Path }}</div>
        </div>
{{ if .Messages }}
        <div class="section">
            <div class="label">Current Message:</div>
            <div class="value">{{ if .Message }}{{ .Message }}{{ else }}<em>No message yet</em>{{ end }}</div>
            {{ if .MessageUpdated }}<div class="value"><small>Updated: {{ .MessageUpdated }}</small></div>{{ end }}
        </div>

        <div class="section">
            <form method="POST" action="/update-message">
                <label class="label" for="message">Update Message:</label>
                <input type="text" id="message" name="message" maxlength="500" value="{{ .Message }}">
                <button type="submit">Save</button>
            </form>
        </div>
{{ end }}
    </div>
</body>
</html>
`))
