// Package consts holds physical constants and the simulator defaults
// derived from them.
package consts

const (
	BOLTZMANN = 1.380649e-23  // J/K
	CHARGE    = 1.602176e-19  // C
	KELVIN    = 273.15        // 0degC in K
	ROOMTEMP  = KELVIN + 27.0 // default analysis temperature
)

// Simulator defaults.
const (
	GMIN       = 1e-12  // minimum junction conductance
	VTHERMAL   = 0.0258 // thermal voltage at room temperature
	VTOLERANCE = 5e-5   // Newton voltage tolerance
	MAXITER    = 200    // Newton iteration limit
)
