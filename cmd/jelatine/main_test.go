/*
 * jelatine VM - A compact Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package main

import "testing"

func TestClassNameToInternal(t *testing.T) {
	cases := []struct{ dotted, internal string }{
		{"Main", "Main"},
		{"com.example.Main", "com/example/Main"},
		{"java/lang/Object", "java/lang/Object"},
	}
	for _, c := range cases {
		if got := classNameToInternal(c.dotted); got != c.internal {
			t.Errorf("classNameToInternal(%q) = %q, want %q", c.dotted, got, c.internal)
		}
	}
}

func TestRootCmdRequiresOneArg(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs(nil)
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("expected an error when no main-class argument is given")
	}
	if err := cmd.Args(cmd, []string{"Main"}); err != nil {
		t.Errorf("one argument should be accepted: %v", err)
	}
}

func TestRootCmdRejectsUnknownGCStrategy(t *testing.T) {
	flagGCStrategy = "bogus"
	defer func() { flagGCStrategy = "recursive" }()
	if err := run("DoesNotMatter"); err == nil {
		t.Error("expected an error for an unrecognized --gc-strategy value")
	}
}
