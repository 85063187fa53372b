// Package interaction decides whether an authorization request needs
// end-user interaction before tokens may be issued.
//
// A Policy is an ordered list of named prompts, each an ordered list of
// checks. Evaluation walks prompts in order and stops at the first
// check that fires: the result names the prompt, the check and the
// protocol error the request should be rejected with if the prompt
// cannot be served. Prompts and checks can be added, replaced and
// removed, so embedding applications can extend the default policy with
// their own rules.
package interaction
