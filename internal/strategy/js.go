package strategy

import (
	"encoding/json"
	"strings"
)

// Selectors are ordered from the notebook's own run hooks to generic ARIA
// matches. They track a third-party DOM and drift with its releases.
var (
	runSelectors = []string{
		`button[aria-label*="Run"]`,
		`button[title*="Run"]`,
		`paper-icon-button[icon="av:play-arrow"]`,
		`[role="button"][aria-label*="Run"]`,
	}

	interruptSelectors = []string{
		`button[aria-label*="Interrupt"]`,
		`button[title*="Interrupt"]`,
		`button[aria-label*="Stop"]`,
		`button[title*="Stop"]`,
		`paper-icon-button[icon="av:stop"]`,
		`[role="button"][aria-label*="Interrupt"]`,
	}
)

const jsResultHelper = `
function _res(acted, detail) {
  return JSON.stringify({ok:true,data:{acted:acted,detail:detail}});
}
`

const jsClickRunButton = jsResultHelper + `
var buttons = document.querySelectorAll("colab-run-button");
if (buttons.length === 0) return _res(false, "no colab-run-button");
buttons[0].click();
return _res(true, "clicked first of " + buttons.length + " colab-run-button");
`

// The shortcut path commits as soon as the cell is focused; the keystroke
// lands 100ms later and its failure is not observable from here.
const jsCodeCellRun = jsResultHelper + `
var cells = document.querySelectorAll(".cell.code");
if (cells.length === 0) return _res(false, "no .cell.code");
var cell = cells[0];
var inner = cell.querySelector('colab-run-button, button[aria-label*="Run"], [role="button"]');
if (inner) {
  inner.click();
  return _res(true, "clicked run control inside first code cell");
}
cell.focus();
cell.click();
setTimeout(function() {
  try {
    var ev = new KeyboardEvent("keydown", {key:"Enter",code:"Enter",shiftKey:true,bubbles:true,cancelable:true});
    cell.dispatchEvent(ev);
    document.dispatchEvent(ev);
  } catch (_) {}
}, 100);
return _res(true, "focused first code cell, Shift+Enter scheduled");
`

const jsSyntheticInterruptKeys = jsResultHelper + `
document.dispatchEvent(new KeyboardEvent("keydown", {key:"i",code:"KeyI",ctrlKey:true,metaKey:false,bubbles:true,cancelable:true}));
document.dispatchEvent(new KeyboardEvent("keydown", {key:"I",code:"KeyI",ctrlKey:false,metaKey:true,bubbles:true,cancelable:true}));
return _res(true, "dispatched Ctrl+I and Meta+I on document");
`

// jsClickFirstMatch clicks the first element matched by the first selector
// that matches anything. A selector that throws is skipped.
func jsClickFirstMatch(selectors []string) string {
	list, _ := json.Marshal(selectors)
	var b strings.Builder
	b.WriteString(jsResultHelper)
	b.WriteString("var selectors = ")
	b.Write(list)
	b.WriteString(`;
for (var i = 0; i < selectors.length; i++) {
  var found;
  try { found = document.querySelectorAll(selectors[i]); } catch (_) { continue; }
  if (found.length > 0) {
    found[0].click();
    return _res(true, "clicked " + selectors[i] + " (" + found.length + " matches)");
  }
}
return _res(false, "no selector matched");
`)
	return b.String()
}
