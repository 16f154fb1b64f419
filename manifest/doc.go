// Package manifest loads named kernel sets from YAML.
//
// A manifest groups kernel files into sets that tooling and services can
// refer to by name, with variable substitution for the data root:
//
//	vars:
//	  DATA: /srv/spice
//	sets:
//	  planning:
//	    - ${DATA}/lsk/naif0012.tls
//	    - ${DATA}/spk/de440.bsp
//	    - ${DATA}/pck/earth_latest.bpc
//	  attitude:
//	    - ${DATA}/lsk/naif0012.tls
//	    - ${DATA}/ck/mission.bc
//
// Variables resolve from the manifest's vars block first, then from the
// process environment. Set order is load order, so put foundation kernels
// (leapseconds, frames) before the data kernels that depend on them.
package manifest
