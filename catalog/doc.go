// Package catalog is the Category, Subcategory and Product resource set:
// records, entities, the projector with its shallow and deep variants,
// repositories and envelope-returning services.
package catalog
