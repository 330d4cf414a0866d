// Package shaders holds the GLSL sources of every pipeline. Run go generate
// to compile them into the SPIR-V the renderer loads at startup.
package shaders

//go:generate glslc -fshader-stage=vert mesh.vert -o mesh.vert.spv
//go:generate glslc -fshader-stage=frag mesh.frag -o mesh.frag.spv
//go:generate glslc -fshader-stage=vert skybox.vert -o skybox.vert.spv
//go:generate glslc -fshader-stage=frag skybox.frag -o skybox.frag.spv
//go:generate glslc -fshader-stage=vert particle.vert -o particle.vert.spv
//go:generate glslc -fshader-stage=frag particle.frag -o particle.frag.spv
//go:generate glslc -fshader-stage=comp mask.comp -o mask.comp.spv
//go:generate glslc -fshader-stage=comp particle.comp -o particle.comp.spv
