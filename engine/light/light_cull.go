package light

// ClusterDimXY is the default number of screen tiles along each of X and Y in
// the clustered light grid. The grid is aligned to the view frustum, so tiles
// are screen-space squares only for a square viewport.
const ClusterDimXY = 16

// ClusterDimZ is the default number of depth slices in the clustered light grid.
// Slices are distributed geometrically between the view near and far planes.
const ClusterDimZ = 24

// MaxLightsPerCluster is the default cap on light indices per grid cell. Lights
// past the cap are dropped in light-list order, so the cascade light and
// earlier lights win.
const MaxLightsPerCluster = 16

// ClusterCount returns the number of cells in a dimXY × dimXY × dimZ grid.
//
// Parameters:
//   - dimXY: tiles along each screen axis
//   - dimZ: depth slices
//
// Returns:
//   - int: total cell count
func ClusterCount(dimXY, dimZ int) int {
	return dimXY * dimXY * dimZ
}

// ClusterIndex returns the flat, row-major cell index used by the tile buffer:
// x + y·dimXY + z·dimXY².
//
// Parameters:
//   - x, y: tile coordinates in [0, dimXY)
//   - z: slice index in [0, dimZ)
//   - dimXY: tiles along each screen axis
//
// Returns:
//   - int: the flat cell index
func ClusterIndex(x, y, z, dimXY int) int {
	return x + y*dimXY + z*dimXY*dimXY
}
