// Code generated by dependgen — DO NOT EDIT.
package device_test

import "github.com/srgg/testify/depend"

var LifecycleTestSuiteTestRegistry = map[string]func(any){
	"TestConnect": func(s any) { s.(*LifecycleTestSuite).TestConnect() },
	"TestNotify": func(s any) { s.(*LifecycleTestSuite).TestNotify() },
	"TestUnexpectedDisconnect": func(s any) { s.(*LifecycleTestSuite).TestUnexpectedDisconnect() },
	"TestReconnect": func(s any) { s.(*LifecycleTestSuite).TestReconnect() },
}

var LifecycleTestSuiteTestOrder = []string{
	"TestConnect",
	"TestNotify",
	"TestUnexpectedDisconnect",
	"TestReconnect",
}

var LifecycleTestSuiteDependencies = depend.Depends(func(s any) *depend.Dep {
	dep := new(depend.Dep)
	dep.On("TestNotify", "TestConnect")
	dep.On("TestUnexpectedDisconnect", "TestNotify")
	dep.On("TestReconnect", "TestUnexpectedDisconnect")
	return dep
})

// GeneratedDependConfig returns the dependency configuration for LifecycleTestSuite.
// This method allows LifecycleTestSuite to be used with depend.RunSuite(t, suite).
// DO NOT implement this method manually - it is auto-generated.
func (s *LifecycleTestSuite) GeneratedDependConfig() *depend.SuiteConfig {
	return &depend.SuiteConfig{
		Registry: LifecycleTestSuiteTestRegistry,
		Order:    LifecycleTestSuiteTestOrder,
		Deps:     LifecycleTestSuiteDependencies,
	}
}
