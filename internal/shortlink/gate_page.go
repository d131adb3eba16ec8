package shortlink

import "html/template"

// The gate page reveals nothing by itself: the inline script exchanges the
// viewer's bearer token for the real media URL via the secure endpoint, which
// enforces the owner check server-side.
var gatePageTemplate = template.Must(template.New("gate").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Private recording</title>
    <style nonce="{{.Nonce}}">
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #0a1628;
            color: #ffffff;
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            min-height: 100vh;
            display: flex;
            flex-direction: column;
            align-items: center;
        }
        .container { max-width: 960px; width: 100%; padding: 2rem 1rem; }
        video { width: 100%; border-radius: 8px; background: #000; }
        .status { margin-top: 1rem; color: #94a3b8; font-size: 0.875rem; }
        .transcript {
            margin-top: 1.5rem;
            color: #cbd5e1;
            font-size: 0.875rem;
            white-space: pre-wrap;
        }
    </style>
</head>
<body>
    <div class="container">
        <video id="player" controls hidden></video>
        <p id="status" class="status">Verifying access…</p>
        <div id="transcript" class="transcript"></div>
        <script nonce="{{.Nonce}}">
            (function() {
                var status = document.getElementById('status');
                var token = localStorage.getItem('token');
                if (!token) {
                    status.textContent = 'Sign in to view this recording.';
                    return;
                }
                fetch('/api/get-secure-video/{{.ID}}', {
                    headers: { 'Authorization': 'Bearer ' + token }
                }).then(function(res) {
                    if (!res.ok) { throw new Error(String(res.status)); }
                    return res.json();
                }).then(function(data) {
                    var v = document.getElementById('player');
                    v.src = data.url;
                    v.hidden = false;
                    status.hidden = true;
                    document.getElementById('transcript').textContent = data.transcription || '';
                }).catch(function(err) {
                    status.textContent = err.message === '403'
                        ? 'This recording belongs to another account.'
                        : 'Recording unavailable.';
                });
            })();
        </script>
    </div>
</body>
</html>
`))

type gatePageData struct {
	ID    string
	Nonce string
}
