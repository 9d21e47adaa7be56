// Package languages stores the supported language catalogue.
//
// Codes are BCP 47 tags canonicalized with golang.org/x/text/language, so
// "EN-gb" and "en-GB" name the same entry. Each language is stored under
// ("languages", id) with a ("languages_by_code", code) index claimed by a
// create-only compare-and-swap.
package languages
