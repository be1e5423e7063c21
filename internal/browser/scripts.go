// internal/browser/scripts.go
package browser

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/kanakapalli/nova-act/api/schemas"
)

// refAttr is stamped on elements located by QueryByVisibleText so later actions
// can address them with a plain attribute selector.
const refAttr = "data-novact-ref"

// Selectors for each role. Order inside a list does not matter: candidates are
// visited in document order by querySelectorAll.
const (
	clickableSelector = `a, button, summary, label, [role="button"], [role="link"], [role="menuitem"], [role="tab"], [onclick],` +
		` input[type="button"], input[type="submit"], input[type="reset"], input[type="image"]`
	editableSelector = `textarea, [contenteditable=""], [contenteditable="true"],` +
		` input:not([type]), input[type="text"], input[type="search"], input[type="email"], input[type="password"],` +
		` input[type="url"], input[type="tel"], input[type="number"]`
)

// queryScriptTemplate takes: substring, role, selector, attribute, ref (all JSON literals).
// It returns {ref, tag, text} for the first visible match or null.
const queryScriptTemplate = `(() => {
  const substring = %s, role = %s, selector = %s, attr = %s, ref = %s;
  const visible = (el) => {
    const r = el.getBoundingClientRect();
    if (r.width === 0 && r.height === 0) return false;
    const st = window.getComputedStyle(el);
    return st.visibility !== 'hidden' && st.display !== 'none';
  };
  const textOf = (el) => {
    if (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA') {
      return el.value || el.getAttribute('aria-label') || el.getAttribute('placeholder') || el.getAttribute('name') || '';
    }
    return el.innerText || el.textContent || '';
  };
  const pick = (el) => {
    document.querySelectorAll('[' + attr + '="' + ref + '"]').forEach((old) => old.removeAttribute(attr));
    el.setAttribute(attr, ref);
    return { ref: ref, tag: el.tagName.toLowerCase(), text: textOf(el).trim().slice(0, 200) };
  };
  if (role === 'editable') {
    const active = document.activeElement;
    if (active && active !== document.body && active.matches(selector) && visible(active) && textOf(active).includes(substring)) {
      return pick(active);
    }
  }
  for (const el of document.querySelectorAll(selector)) {
    if (!visible(el)) continue;
    if (!textOf(el).includes(substring)) continue;
    return pick(el);
  }
  return null;
})()`

// setValueScriptTemplate takes: selector, text (JSON literals). It replaces the
// element's value (or text for contenteditable) and fires input and change.
const setValueScriptTemplate = `(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  const text = %s;
  el.focus();
  if (el.isContentEditable) {
    el.textContent = text;
  } else {
    const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
    const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
    setter.call(el, text);
  }
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})()`

// bodyTextScript returns null rather than throwing when the document has no body yet.
const bodyTextScript = `document.body ? document.body.innerText : null`

// outerHTMLScript returns the serialized document.
const outerHTMLScript = `document.documentElement ? document.documentElement.outerHTML : null`

func jsLiteral(v string) string {
	b, _ := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	return string(b)
}

func refSelector(ref string) string {
	return fmt.Sprintf(`[%s=%s]`, refAttr, jsLiteral(ref))
}

func selectorFor(role schemas.ElementRole) (string, error) {
	switch role {
	case schemas.RoleClickable:
		return clickableSelector, nil
	case schemas.RoleEditable:
		return editableSelector, nil
	default:
		return "", fmt.Errorf("unknown element role %q", role)
	}
}

func buildQueryScript(substring string, role schemas.ElementRole, ref string) (string, error) {
	selector, err := selectorFor(role)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(queryScriptTemplate,
		jsLiteral(substring), jsLiteral(string(role)), jsLiteral(selector), jsLiteral(refAttr), jsLiteral(ref)), nil
}

func buildSetValueScript(ref, text string) string {
	return fmt.Sprintf(setValueScriptTemplate, jsLiteral(refSelector(ref)), jsLiteral(text))
}
