package widget

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
)

// FrameSandbox is the sandbox of the iframe that runs the untrusted embed.
// Without allow-same-origin the frame gets an opaque origin, so the embed
// cannot reach the host document, its storage or the same-origin API.
const FrameSandbox = "allow-scripts allow-forms allow-popups"

// FrameCSP is sent with the frame document so it stays sandboxed even when
// opened outside the host page.
const FrameCSP = "sandbox " + FrameSandbox

// FrameData renders the isolated document that runs the widget.
type FrameData struct {
	Title      string
	ScriptID   string
	OutcomeURL string
	Tag        string
	Policy     Policy
	Embed      Embed
}

// HostData renders the page around the frame.
type HostData struct {
	Title            string
	ScriptID         string
	ClientName       string
	FrameURL         string
	ConversationID   string
	ConversationsURL string
	Link             string
	PreviewLink      string
}

type frameConfig struct {
	ScriptID   string        `json:"scriptId"`
	OutcomeURL string        `json:"outcomeURL,omitempty"`
	Policy     runtimePolicy `json:"policy"`
	Embed      Embed         `json:"embed"`
}

type frameView struct {
	Title    string
	Config   frameConfig
	NetPatch template.JS
	Runtime  template.JS
	Markup   template.HTML
}

const frameTemplate = `<!DOCTYPE html>
<html lang="pt-BR">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>{{.Title}}</title>
    <style>
      html, body { margin: 0; min-height: 100vh; background: transparent; font-family: system-ui, sans-serif; }
      .widget-preview-error { position: fixed; right: 20px; bottom: 20px; padding: 12px 16px; background: #fee2e2; color: #991b1b; border-radius: 8px; }
    </style>
    <script>{{.NetPatch}}</script>
    <script>window.__widgetPreviewConfig = {{.Config}};</script>
  </head>
  <body>
    {{.Markup}}
    <script>{{.Runtime}}</script>
  </body>
</html>`

const hostTemplate = `<!DOCTYPE html>
<html lang="pt-BR">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>{{.Title}}</title>
    <style>
      body { margin: 0; font-family: system-ui, -apple-system, "Segoe UI", sans-serif; background: #f8fafc; }
      header { display: flex; gap: 12px; align-items: center; padding: 12px 20px; background: #fff; border-bottom: 1px solid #e2e8f0; }
      header h1 { font-size: 16px; margin: 0; flex: 1; }
      header a, header button { font-size: 14px; }
      main { display: flex; height: calc(100vh - 53px); }
      iframe#widget-frame { flex: 1; border: 0; }
      aside { width: 280px; border-left: 1px solid #e2e8f0; background: #fff; padding: 12px; overflow: auto; }
      aside h2 { font-size: 14px; }
      aside li { display: flex; justify-content: space-between; gap: 8px; font-size: 12px; margin-bottom: 6px; }
      #outcome { font-size: 12px; color: #475569; }
    </style>
  </head>
  <body>
    <header>
      <h1>{{.ClientName}}</h1>
      <span id="outcome">Carregando widget…</span>
      <button id="new-conversation" type="button">Nova Conversa</button>
      {{if .Link}}<a href="{{.Link}}" target="_blank" rel="noopener">Link do cliente</a>{{end}}
      {{if .PreviewLink}}<a href="{{.PreviewLink}}" target="_blank" rel="noopener">Link do script</a>{{end}}
      <a href="/">Início</a>
    </header>
    <main>
      <iframe id="widget-frame" src="{{.FrameURL}}" sandbox="{{.Sandbox}}" title="Widget"></iframe>
      <aside>
        <h2>Conversa atual</h2>
        <code id="current-conversation">{{.ConversationID}}</code>
        <h2>Histórico</h2>
        <ul id="history"></ul>
      </aside>
    </main>
    <script>
      (function () {
        var endpoint = {{.ConversationsURL}};
        var current = {{.ConversationID}};
        var frame = document.getElementById('widget-frame');
        var label = document.getElementById('current-conversation');
        var outcome = document.getElementById('outcome');
        var list = document.getElementById('history');
        var labels = { mounted: 'Widget carregado', fallback: 'Widget substituto exibido', error: 'Falha ao carregar widget' };

        function setCurrent(id) { current = id; label.textContent = id; }

        function render(entries) {
          list.textContent = '';
          entries.forEach(function (e) {
            var li = document.createElement('li');
            var span = document.createElement('span');
            span.textContent = e.conversationId + ' · ' + new Date(e.archivedAt).toLocaleString();
            var del = document.createElement('button');
            del.type = 'button';
            del.textContent = 'Excluir';
            del.onclick = function () {
              fetch(endpoint + '/' + encodeURIComponent(e.id), { method: 'DELETE' }).then(load);
            };
            li.appendChild(span);
            li.appendChild(del);
            list.appendChild(li);
          });
        }

        function load() {
          fetch(endpoint).then(function (r) { return r.json(); }).then(function (body) {
            render(body.entries || []);
          });
        }

        document.getElementById('new-conversation').onclick = function () {
          fetch(endpoint, {
            method: 'POST',
            headers: { 'Content-Type': 'application/json' },
            body: JSON.stringify({ conversationId: current })
          }).then(function (r) { return r.json(); }).then(function (body) {
            if (body.conversationId) { setCurrent(body.conversationId); }
            outcome.textContent = 'Reiniciando widget…';
            frame.contentWindow.postMessage({ type: 'widget-preview:reset' }, '*');
            load();
          });
        };

        window.addEventListener('message', function (e) {
          if (e.source !== frame.contentWindow || !e.data) { return; }
          if (e.data.type === 'widget-preview:outcome') {
            outcome.textContent = labels[e.data.outcome] || e.data.outcome;
          }
          if (e.data.type === 'widget-preview:session' && e.data.conversationId) {
            setCurrent(e.data.conversationId);
          }
        });

        load();
      })();
    </script>
  </body>
</html>`

var (
	frameTmpl = template.Must(template.New("frame").Parse(frameTemplate))
	hostTmpl  = template.Must(template.New("host").Parse(hostTemplate))
)

// RenderFrame writes the widget document. Inline code is wrapped by
// Instrument before it reaches the runtime.
func RenderFrame(w io.Writer, d FrameData) error {
	emb := d.Embed
	if !emb.External() {
		emb.Inline = Instrument(emb.Inline, d.Policy.Normalized().WidgetTag)
	}
	view := frameView{
		Title: d.Title,
		Config: frameConfig{
			ScriptID:   d.ScriptID,
			OutcomeURL: d.OutcomeURL,
			Policy:     d.Policy.runtime(),
			Embed:      emb,
		},
		NetPatch: template.JS(NetworkPatch()),
		Runtime:  template.JS(Runtime()),
		// The frame is the isolation boundary for the pasted markup.
		Markup: template.HTML(emb.Markup),
	}
	return render(w, frameTmpl, view)
}

// RenderHost writes the page that hosts the frame, the history panel and
// the new-conversation control.
func RenderHost(w io.Writer, d HostData) error {
	view := struct {
		HostData
		Sandbox string
	}{HostData: d, Sandbox: FrameSandbox}
	return render(w, hostTmpl, view)
}

func render(w io.Writer, t *template.Template, data any) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("widget: render %s: %w", t.Name(), err)
	}
	_, err := buf.WriteTo(w)
	return err
}
