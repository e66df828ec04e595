/*
Copyright © 2026 the Downscale authors.
This file is part of Downscale.

Downscale is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Downscale is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Downscale.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package downscale implements spatio-temporal downscaling of gridded
// geophysical fields: regridding coarse-resolution source data onto a
// finer destination grid and enhancing it with a resolution model,
// followed by consistency validation of the result.
package downscale

// Version gives the version number of this version of Downscale.
const Version = "1.0.0"
