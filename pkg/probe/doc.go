/*
Package probe finds and invokes members of values whose shape is not known in advance.

A caller passes an ordered list of candidate member names. [Probe] invokes the first candidate
that names a func member and reports which one matched:

	res, err := probe.Probe(ctx, client, []string{"login", "signIn", "connect"})
	if err != nil {
		return err // the matched member failed; later candidates were not tried
	}
	if !res.Found() {
		// no candidate was invokable
	}

Probe is the one-shot form: it looks the candidates up again on every call. Callers that perform
the same action repeatedly on one value should cache the match instead; the relay does this with
capability.Binding, which builds on [Func], [Property] and [Invoke] and reports failures as an
[InvocationError] just as Probe does.

Candidate names use lowerCamelCase. On an [Object] they are used verbatim as keys; on other values
they are looked up as exported methods or fields with the first letter upper-cased.
*/
package probe
