// Package steps holds the built-in step bodies shipped with this binary.
// Each subpackage self-registers its overloads onto Default from an init()
// function, mirroring the teacher's plugin.RegisterPlugin self-registration
// pattern — the cmd driver only needs a blank import per subpackage to make
// its steps reachable from an "Object.function" reference.
package steps

import "github.com/jriewerts/metalus/internal/registry"

// PackageName is the stepPackages entry every built-in step is registered
// under.
const PackageName = "com.acxiom.pipeline.steps"

// Default is the registry built-in step bodies register themselves onto.
var Default = registry.New()
