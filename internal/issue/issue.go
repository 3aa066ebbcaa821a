// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	ScriptNotFoundId Id = iota + 1
	InterpreterUnavailableId
	ConfigLoadFailedId
	RunAlreadyActiveId
	ScriptExecutionFailedId
	InvalidPhaseId
)

type (
	Id int

	MarkdownMsg string

	HttpLink string

	// Issue is a catalog entry with Markdown guidance for one failure class.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

func (i *Issue) Id() Id { return i.id }

func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

func (i *Issue) ExtLinks() []HttpLink { return slices.Clone(i.extLinks) }

// Render renders the issue with glamour. An empty stylePath uses glamour's
// auto style.
func (i *Issue) Render(stylePath string) (string, error) {
	var sb strings.Builder
	sb.WriteString(string(i.mdMsg))
	if links := append(i.DocLinks(), i.extLinks...); len(links) > 0 {
		sb.WriteString("\n\n## See also\n")
		for _, link := range links {
			sb.WriteString("- <" + string(link) + ">\n")
		}
	}
	if stylePath == "" {
		stylePath = "auto"
	}
	return render(sb.String(), stylePath)
}

var (
	render = glamour.Render

	scriptNotFoundIssue = &Issue{
		id: ScriptNotFoundId,
		mdMsg: `
# Optimizer entry script not found!

The bridge looked for the entry script and could not find a regular file there.
Without a script only the embedded smoke test can run.

## Things you can try:
- Check the resolved path:
~~~
$ magicopt bridge status
~~~
- Set ` + "`script.root`" + ` and ` + "`script.entry`" + ` in your config, or ` + "`project_dir`" + ` if the
  script lives under another project.`,
	}

	interpreterUnavailableIssue = &Issue{
		id: InterpreterUnavailableId,
		mdMsg: `
# No interpreter available!

The embedded interpreter is disabled and the configured system binary was not
found on PATH, so the bridge cannot run anything.

## Things you can try:
- Re-enable the embedded interpreter (` + "`interpreter.embedded: true`" + `)
- Install the binary named by ` + "`interpreter.system_binary`" + ` or point it at an absolute path`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file could not be parsed or did not match the schema.

## Things you can try:
- Show the effective configuration and where it was read from:
~~~
$ magicopt config path
$ magicopt config show
~~~
- Write a fresh default file with ` + "`magicopt config init`" + ``,
	}

	runAlreadyActiveIssue = &Issue{
		id: RunAlreadyActiveId,
		mdMsg: `
# A run is already active!

Only one optimization run may be active at a time. The new request was
rejected and the running one was left untouched.

## Things you can try:
- Wait for the current run to finish, or cancel it with Ctrl-C`,
	}

	scriptExecutionFailedIssue = &Issue{
		id: ScriptExecutionFailedId,
		mdMsg: `
# Script execution failed!

The optimizer script exited with an error or reported ` + "`success: false`" + `.

## Things you can try:
- Re-run with ` + "`--verbose`" + ` to see the captured stderr
- Inspect the result file written under the output directory
- Run the entry script by hand with the same arguments`,
	}

	invalidPhaseIssue = &Issue{
		id: InvalidPhaseId,
		mdMsg: `
# Invalid phase!

Valid phases are ` + "`Audit`" + `, ` + "`Recommend`" + `, ` + "`Apply`" + ` and ` + "`Verify`" + ` (case-insensitive).

## Example:
~~~
$ magicopt run Recommend Textures,Meshes
~~~`,
	}

	issues = map[Id]*Issue{
		scriptNotFoundIssue.Id():         scriptNotFoundIssue,
		interpreterUnavailableIssue.Id(): interpreterUnavailableIssue,
		configLoadFailedIssue.Id():       configLoadFailedIssue,
		runAlreadyActiveIssue.Id():       runAlreadyActiveIssue,
		scriptExecutionFailedIssue.Id():  scriptExecutionFailedIssue,
		invalidPhaseIssue.Id():           invalidPhaseIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
