package usecase

import (
	"context"
)

// Example widget seeded by the setup page.
const (
	ExampleClientName = "Exemplo"
	ExampleSlug       = "exemplo"
	ExampleTitle      = "Widget de exemplo"
)

const exampleScript = `<script>
(function () {
  if (customElements.get('ra-chatbot-widget')) { return; }
  customElements.define('ra-chatbot-widget', class extends HTMLElement {
    connectedCallback() {
      this.innerHTML = '<div class="chat-widget" style="padding:12px;border-radius:12px;background:#1d4ed8;color:#fff">Olá! Como posso ajudar?</div>';
    }
  });
  document.body.appendChild(document.createElement('ra-chatbot-widget'));
})();
</script>`

// SeedExample creates the example client and script unless the example
// client already exists, in which case its newest script is returned.
func (c *Composer) SeedExample(ctx context.Context) (ComposeOutput, error) {
	existing, err := c.clients.GetBySlug(ctx, ExampleSlug)
	if err == nil {
		scripts, err := c.scripts.GetByClient(ctx, existing.ID)
		if err != nil {
			return ComposeOutput{}, storeError(err)
		}
		if len(scripts) > 0 {
			return ComposeOutput{
				State:       StateLinkGenerated,
				ClientID:    existing.ID,
				ScriptID:    scripts[0].ID,
				Slug:        existing.Slug,
				Link:        c.links.Client(existing.Slug),
				PreviewLink: c.links.Preview(scripts[0].ID),
			}, nil
		}
		return c.Compose(ctx, ComposeInput{Script: exampleScript, Title: ExampleTitle, ClientID: existing.ID})
	}
	if !isNotFound(err) {
		return ComposeOutput{}, storeError(err)
	}
	return c.Compose(ctx, ComposeInput{
		Script:    exampleScript,
		Title:     ExampleTitle,
		NewClient: true,
		Name:      ExampleClientName,
		Slug:      ExampleSlug,
	})
}
