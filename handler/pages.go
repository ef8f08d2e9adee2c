package handler

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"

	"widget-preview/internal/usecase"
	"widget-preview/internal/widget"
)

const layoutTemplate = `{{define "top"}}<!DOCTYPE html>
<html lang="pt-BR">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>{{.Title}}</title>
    <style>
      body { margin: 0 auto; max-width: 880px; padding: 24px; font-family: system-ui, -apple-system, "Segoe UI", sans-serif; color: #0f172a; }
      nav a { margin-right: 12px; }
      label { display: block; margin-top: 12px; font-size: 14px; }
      input, textarea, select { width: 100%; box-sizing: border-box; padding: 8px; font: inherit; }
      textarea { min-height: 160px; font-family: ui-monospace, monospace; font-size: 13px; }
      button { margin-top: 16px; padding: 8px 16px; }
      .error { color: #b91c1c; }
      .ok { color: #15803d; }
      table { width: 100%; border-collapse: collapse; margin-top: 16px; }
      td, th { text-align: left; padding: 6px; border-bottom: 1px solid #e2e8f0; font-size: 14px; }
      #storage-status { font-size: 12px; color: #475569; }
    </style>
  </head>
  <body>
    <nav><a href="/">Novo script</a><a href="/clients">Clientes</a><a href="/setup">Exemplo</a><span id="storage-status"></span></nav>
{{end}}
{{define "bottom"}}
    <script>
      fetch('/api/status').then(function (r) { return r.json(); }).then(function (s) {
        var el = document.getElementById('storage-status');
        el.textContent = s.mode === 'remote' ? 'Armazenamento: ' + s.backend : 'Armazenamento local';
        if (s.missing && s.missing.length) { el.title = 'Variáveis ausentes: ' + s.missing.join(', '); }
      });
    </script>
  </body>
</html>{{end}}`

const composerTemplate = `{{template "top" .}}
    <h1>Gerar link de preview</h1>
    <form id="composer">
      <label>Script do widget<textarea name="script" required></textarea></label>
      <label>Título<input name="title" maxlength="200" /></label>
      <label>Descrição<input name="description" maxlength="1000" /></label>
      <label><input type="radio" name="mode" value="new" checked /> Novo cliente</label>
      <label><input type="radio" name="mode" value="existing" /> Cliente existente</label>
      <fieldset id="new-client">
        <label>Nome<input name="name" maxlength="120" /></label>
        <label>Slug<input name="slug" maxlength="50" placeholder="gerado a partir do nome" /></label>
        <label>E-mail<input name="email" type="email" /></label>
        <label>Telefone<input name="phone" /></label>
        <label>Empresa<input name="company" /></label>
      </fieldset>
      <fieldset id="existing-client" hidden>
        <label>Cliente<select name="clientId"><option value="">Selecione…</option></select></label>
      </fieldset>
      <button type="submit">Gerar link</button>
    </form>
    <p id="result"></p>
    <script>
      (function () {
        var form = document.getElementById('composer');
        var f = form.elements;
        var result = document.getElementById('result');
        var slugTouched = false;

        f.slug.addEventListener('input', function () { slugTouched = f.slug.value !== ''; });
        f.name.addEventListener('input', function () {
          if (slugTouched) { return; }
          fetch('/api/slug?name=' + encodeURIComponent(f.name.value))
            .then(function (r) { return r.json(); })
            .then(function (b) { f.slug.placeholder = b.slug || 'gerado a partir do nome'; });
        });
        Array.prototype.forEach.call(f.mode, function (radio) {
          radio.addEventListener('change', function () {
            var isNew = f.mode.value === 'new';
            document.getElementById('new-client').hidden = !isNew;
            document.getElementById('existing-client').hidden = isNew;
          });
        });
        fetch('/api/clients').then(function (r) { return r.json(); }).then(function (ov) {
          (ov.clients || []).forEach(function (c) {
            var opt = document.createElement('option');
            opt.value = c.id;
            opt.textContent = c.name + ' (' + c.slug + ')';
            f.clientId.appendChild(opt);
          });
        });

        form.addEventListener('submit', function (e) {
          e.preventDefault();
          var body = {
            script: f.script.value,
            title: f.title.value,
            description: f.description.value,
            newClient: f.mode.value === 'new',
            clientId: f.clientId.value,
            name: f.name.value,
            slug: f.slug.value,
            email: f.email.value,
            phone: f.phone.value,
            company: f.company.value
          };
          fetch('/api/compose', { method: 'POST', headers: { 'Content-Type': 'application/json' }, body: JSON.stringify(body) })
            .then(function (r) { return r.json().then(function (b) { return { ok: r.ok, body: b }; }); })
            .then(function (res) {
              result.textContent = '';
              if (!res.ok) {
                result.className = 'error';
                result.textContent = res.body.message;
                return;
              }
              result.className = 'ok';
              var a = document.createElement('a');
              a.href = res.body.link;
              a.textContent = res.body.link;
              result.appendChild(document.createTextNode('Link gerado: '));
              result.appendChild(a);
              f.script.value = '';
            });
        });
      })();
    </script>
{{template "bottom" .}}`

const managerTemplate = `{{template "top" .}}
    <h1>Clientes</h1>
    <p id="summary"></p>
    <table>
      <thead><tr><th>Nome</th><th>Slug</th><th>Contato</th><th>Scripts</th><th></th></tr></thead>
      <tbody id="clients"></tbody>
    </table>
    <p id="message"></p>

    <dialog id="client-dialog">
      <form id="client-form" method="dialog">
        <h2>Editar cliente</h2>
        <label>Nome <input name="name" required maxlength="120" /></label>
        <label>E-mail <input name="email" type="email" maxlength="254" /></label>
        <label>Telefone <input name="phone" maxlength="40" /></label>
        <label>Empresa <input name="company" maxlength="120" /></label>
        <button type="submit" value="save">Salvar</button>
        <button type="submit" value="cancel" formnovalidate>Cancelar</button>
      </form>
    </dialog>

    <dialog id="script-dialog">
      <form id="script-form" method="dialog">
        <h2>Editar script</h2>
        <label>Título <input name="title" maxlength="200" /></label>
        <label>Descrição <input name="description" maxlength="1000" /></label>
        <label>Script <textarea name="script" required></textarea></label>
        <label><input name="isActive" type="checkbox" style="width:auto" /> Ativo</label>
        <button type="submit" value="save">Salvar</button>
        <button type="submit" value="cancel" formnovalidate>Cancelar</button>
      </form>
    </dialog>

    <script>
      (function () {
        var tbody = document.getElementById('clients');
        var message = document.getElementById('message');
        var clientDialog = document.getElementById('client-dialog');
        var clientForm = document.getElementById('client-form');
        var scriptDialog = document.getElementById('script-dialog');
        var scriptForm = document.getElementById('script-form');
        var editingClient = null;
        var editingScript = null;
        var open = {};

        function cell(tr, text) { var td = document.createElement('td'); td.textContent = text; tr.appendChild(td); return td; }

        function button(parent, text, onclick) {
          var b = document.createElement('button');
          b.type = 'button';
          b.textContent = text;
          b.onclick = onclick;
          parent.appendChild(b);
          return b;
        }

        function copy(text) {
          navigator.clipboard.writeText(text).then(function () {
            message.className = 'ok';
            message.textContent = 'Link copiado: ' + text;
          });
        }

        function send(method, url, body) {
          var init = { method: method };
          if (body) {
            init.headers = { 'Content-Type': 'application/json' };
            init.body = JSON.stringify(body);
          }
          return fetch(url, init).then(done);
        }

        function done(r) {
          if (r.ok) { message.className = ''; message.textContent = ''; load(); return; }
          return r.json().then(function (b) { message.className = 'error'; message.textContent = b.message; load(); });
        }

        function editClient(c) {
          editingClient = Object.assign({}, c);
          var f = clientForm.elements;
          f.name.value = editingClient.name || '';
          f.email.value = editingClient.email || '';
          f.phone.value = editingClient.phone || '';
          f.company.value = editingClient.company || '';
          clientDialog.showModal();
        }

        clientDialog.addEventListener('close', function () {
          if (clientDialog.returnValue !== 'save' || !editingClient) { editingClient = null; return; }
          var f = clientForm.elements;
          send('PATCH', '/api/clients/' + encodeURIComponent(editingClient.id), {
            name: f.name.value, email: f.email.value, phone: f.phone.value, company: f.company.value
          });
          editingClient = null;
        });

        function editScript(sc) {
          editingScript = Object.assign({}, sc);
          var f = scriptForm.elements;
          f.title.value = editingScript.title || '';
          f.description.value = editingScript.description || '';
          f.script.value = editingScript.script || '';
          f.isActive.checked = !!editingScript.isActive;
          scriptDialog.showModal();
        }

        scriptDialog.addEventListener('close', function () {
          if (scriptDialog.returnValue !== 'save' || !editingScript) { editingScript = null; return; }
          var f = scriptForm.elements;
          send('PATCH', '/api/scripts/' + encodeURIComponent(editingScript.id), {
            title: f.title.value, description: f.description.value, script: f.script.value, isActive: f.isActive.checked
          });
          editingScript = null;
        });

        function renderScripts(c, row) {
          var tr = document.createElement('tr');
          tr.className = 'scripts-of-' + c.id;
          var td = document.createElement('td');
          td.colSpan = 5;
          tr.appendChild(td);
          row.parentNode.insertBefore(tr, row.nextSibling);
          fetch('/api/clients/' + encodeURIComponent(c.id) + '/scripts').then(function (r) { return r.json(); }).then(function (scripts) {
            if (!scripts.length) { td.textContent = 'Nenhum script.'; return; }
            var list = document.createElement('ul');
            scripts.forEach(function (sc) {
              var li = document.createElement('li');
              var label = document.createElement('span');
              label.textContent = (sc.title || sc.id) + (sc.isActive ? '' : ' (inativo)') + ' · ' + new Date(sc.createdAt).toLocaleString();
              li.appendChild(label);
              button(li, 'Copiar link', function () { copy(sc.previewLink); });
              var view = document.createElement('a');
              view.href = sc.previewLink;
              view.target = '_blank';
              view.rel = 'noopener';
              view.textContent = 'Abrir';
              li.appendChild(view);
              button(li, 'Editar', function () { editScript(sc); });
              button(li, 'Excluir', function () {
                if (!confirm('Excluir o script ' + (sc.title || sc.id) + '?')) { return; }
                send('DELETE', '/api/scripts/' + encodeURIComponent(sc.id));
              });
              list.appendChild(li);
            });
            td.appendChild(list);
          });
        }

        function load() {
          fetch('/api/clients').then(function (r) { return r.json(); }).then(function (ov) {
            document.getElementById('summary').textContent = ov.clients.length + ' clientes, ' + ov.totalScripts + ' scripts';
            tbody.textContent = '';
            ov.clients.forEach(function (c) {
              var tr = document.createElement('tr');
              cell(tr, c.name);
              cell(tr, c.slug);
              cell(tr, [c.email, c.phone, c.company].filter(Boolean).join(' · '));
              cell(tr, String(c.scriptCount));
              var actions = cell(tr, '');
              button(actions, open[c.id] ? 'Ocultar scripts' : 'Scripts', function () {
                open[c.id] = !open[c.id];
                load();
              });
              button(actions, 'Copiar link', function () { copy(c.link); });
              button(actions, 'Editar', function () { editClient(c); });
              button(actions, 'Excluir', function () {
                if (!confirm('Excluir ' + c.name + ' e todos os seus scripts?')) { return; }
                send('DELETE', '/api/clients/' + encodeURIComponent(c.id) + '?confirm=true');
              });
              tbody.appendChild(tr);
              if (open[c.id]) { renderScripts(c, tr); }
            });
          });
        }

        load();
      })();
    </script>
{{template "bottom" .}}`

const setupTemplate = `{{template "top" .}}
    <h1>Widget de exemplo</h1>
    <p>Cria um cliente "Exemplo" com um widget mínimo para testar o preview.</p>
    <button id="seed" type="button">Criar exemplo</button>
    <p id="result"></p>
    <script>
      document.getElementById('seed').onclick = function () {
        fetch('/api/setup/example', { method: 'POST' })
          .then(function (r) { return r.json(); })
          .then(function (b) {
            var result = document.getElementById('result');
            result.textContent = '';
            if (!b.link) { result.className = 'error'; result.textContent = b.message; return; }
            var a = document.createElement('a');
            a.href = b.link;
            a.textContent = b.link;
            result.appendChild(a);
          });
      };
    </script>
{{template "bottom" .}}`

const errorTemplate = `{{template "top" .}}
    <h1>{{.Heading}}</h1>
    <p class="error">{{.Message}}</p>
    <p><a href="/">Voltar ao início</a></p>
{{template "bottom" .}}`

var pageTmpl = template.Must(template.New("layout").Parse(layoutTemplate))

var (
	composerTmpl = mustPage("composer", composerTemplate)
	managerTmpl  = mustPage("manager", managerTemplate)
	setupTmpl    = mustPage("setup", setupTemplate)
	errorTmpl    = mustPage("error", errorTemplate)
)

func mustPage(name, body string) *template.Template {
	return template.Must(template.Must(pageTmpl.Clone()).New(name).Parse(body))
}

type pageView struct {
	Title   string
	Heading string
	Message string
}

var errorHeadings = map[string]string{
	usecase.ReasonNotFound:        "Preview não encontrado",
	usecase.ReasonEmptyStore:      "Nenhum script cadastrado",
	usecase.ReasonMalformedScript: "Script inválido",
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, t *template.Template, v any) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		h.logger.Error("render page failed", "page", t.Name(), "err", err, "correlation_id", correlationID(r.Context()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError shows the terminal error view with a link back to the composer.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	ue, ok := usecase.AsError(err)
	if !ok {
		ue = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected_error", Err: err}
	}
	status := statusFor(ue.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("page failed", "path", r.URL.Path, "reason", ue.Reason, "err", err, "correlation_id", correlationID(r.Context()))
	}
	heading, ok := errorHeadings[ue.Reason]
	if !ok {
		heading = "Algo deu errado"
	}
	h.renderPage(w, r, status, errorTmpl, pageView{Title: heading, Heading: heading, Message: ue.Message()})
}

// root redirects client subdomains to their preview and serves the composer
// everywhere else.
func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	if slug, ok := h.subdomains.Resolve(r.Host); ok {
		http.Redirect(w, r, "/"+slug, http.StatusFound)
		return
	}
	h.renderPage(w, r, http.StatusOK, composerTmpl, pageView{Title: "Gerar link de preview"})
}

func (h *Handler) managerPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, managerTmpl, pageView{Title: "Clientes"})
}

func (h *Handler) setupPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, http.StatusOK, setupTmpl, pageView{Title: "Widget de exemplo"})
}

func (h *Handler) previewPage(w http.ResponseWriter, r *http.Request) {
	h.renderHost(w, r, mux.Vars(r)["id"])
}

func (h *Handler) slugPage(w http.ResponseWriter, r *http.Request) {
	h.renderHost(w, r, mux.Vars(r)["slug"])
}

func (h *Handler) renderHost(w http.ResponseWriter, r *http.Request, ref string) {
	p, err := h.previewer.Resolve(r.Context(), ref)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	id := p.Script.ID
	data := widget.HostData{
		Title:            hostTitle(p),
		ScriptID:         id,
		ClientName:       p.Script.ClientName,
		FrameURL:         "/preview/" + id + "/frame",
		ConversationID:   newUUID(),
		ConversationsURL: "/api/previews/" + id + "/conversations",
		PreviewLink:      "/preview/" + id,
	}
	if p.Script.ClientSlug != "" {
		data.Link = "/" + p.Script.ClientSlug
	}
	var buf bytes.Buffer
	if err := widget.RenderHost(&buf, data); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// previewFrame serves the isolated document that runs the stored embed.
func (h *Handler) previewFrame(w http.ResponseWriter, r *http.Request) {
	p, err := h.previewer.Resolve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	policy := h.previewer.Policy()
	var buf bytes.Buffer
	err = widget.RenderFrame(&buf, widget.FrameData{
		Title:      hostTitle(p),
		ScriptID:   p.Script.ID,
		OutcomeURL: "/api/previews/" + p.Script.ID + "/outcome",
		Tag:        policy.WidgetTag,
		Policy:     policy,
		Embed:      p.Embed,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Security-Policy", widget.FrameCSP)
	_, _ = buf.WriteTo(w)
}

func hostTitle(p usecase.Preview) string {
	if p.Script.Title != "" {
		return p.Script.Title
	}
	if p.Script.ClientName != "" {
		return p.Script.ClientName
	}
	return "Preview"
}
