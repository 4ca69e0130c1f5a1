// Code generated by dependgen — DO NOT EDIT.
package peripheral_test

import "github.com/srgg/testify/depend"

var SequencerTestSuiteTestRegistry = map[string]func(any){
	"TestStartupOrdering": func(s any) { s.(*SequencerTestSuite).TestStartupOrdering() },
	"TestPeriodicSampling": func(s any) { s.(*SequencerTestSuite).TestPeriodicSampling() },
	"TestFixedCardinality": func(s any) { s.(*SequencerTestSuite).TestFixedCardinality() },
	"TestPressSurvivesMotionBurst": func(s any) { s.(*SequencerTestSuite).TestPressSurvivesMotionBurst() },
	"TestUnconfiguredStaysPassive": func(s any) { s.(*SequencerTestSuite).TestUnconfiguredStaysPassive() },
	"TestAmbiguousConfigStaysPassive": func(s any) { s.(*SequencerTestSuite).TestAmbiguousConfigStaysPassive() },
	"TestPublishFailureIsFatal": func(s any) { s.(*SequencerTestSuite).TestPublishFailureIsFatal() },
	"TestZeroDelays": func(s any) { s.(*SequencerTestSuite).TestZeroDelays() },
}

var SequencerTestSuiteTestOrder = []string{
	"TestStartupOrdering",
	"TestPeriodicSampling",
	"TestFixedCardinality",
	"TestPressSurvivesMotionBurst",
	"TestUnconfiguredStaysPassive",
	"TestAmbiguousConfigStaysPassive",
	"TestPublishFailureIsFatal",
	"TestZeroDelays",
}

var SequencerTestSuiteDependencies = depend.Depends(func(s any) *depend.Dep {
	dep := new(depend.Dep)
	dep.On("TestPeriodicSampling", "TestStartupOrdering")
	dep.On("TestFixedCardinality", "TestStartupOrdering")
	dep.On("TestPressSurvivesMotionBurst", "TestStartupOrdering")
	return dep
})

// GeneratedDependConfig returns the dependency configuration for SequencerTestSuite.
// This method allows SequencerTestSuite to be used with depend.RunSuite(t, suite).
// DO NOT implement this method manually - it is auto-generated.
func (s *SequencerTestSuite) GeneratedDependConfig() *depend.SuiteConfig {
	return &depend.SuiteConfig{
		Registry: SequencerTestSuiteTestRegistry,
		Order:    SequencerTestSuiteTestOrder,
		Deps:     SequencerTestSuiteDependencies,
	}
}
