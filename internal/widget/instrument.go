package widget

import (
	_ "embed"
	"encoding/json"
	"strings"
)

var (
	//go:embed runtime.js
	runtimeJS string

	//go:embed netpatch.js
	netPatchJS string
)

// NetworkPatch returns the script that logs fetch and XHR traffic of the
// frame. It installs itself at most once per page.
func NetworkPatch() string {
	return netPatchJS
}

// Runtime returns the browser runtime that injects the embed and watches
// for the widget root.
func Runtime() string {
	return runtimeJS
}

const defineGuard = `(function () {
  var tag = %TAG%;
  var registry = window.customElements;
  if (!registry || registry.__widgetPreviewGuard) { return; }
  var define = registry.define.bind(registry);
  registry.define = function (name, ctor, options) {
    if (String(name).toLowerCase() === tag && registry.get(name)) {
      console.info('[widget-preview] custom element already defined:', name);
      return;
    }
    return define(name, ctor, options);
  };
  registry.__widgetPreviewGuard = true;
})();
`

// Instrument prefixes inline widget code with a guard that turns a repeated
// customElements.define of tag into a no-op. The code itself runs unchanged
// at top level.
func Instrument(code, tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		tag = DefaultTag
	}
	quoted, _ := json.Marshal(tag)
	return strings.Replace(defineGuard, "%TAG%", string(quoted), 1) + code
}
